// Package service implements the event coordinator: every mutation couples
// a storage write with a WebSocket broadcast and a message bus publish, and
// the periodic reconciler ingests new GitHub activity through the same path.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gitpulse/gitpulse/internal/logging"
	"github.com/gitpulse/gitpulse/internal/messaging"
	"github.com/gitpulse/gitpulse/internal/metrics"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/repository"
)

// ErrValidation is returned when a create request fails model validation.
var ErrValidation = errors.New("invalid event")

// Notification types sent to WebSocket subscribers and the message bus.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionGetByID = "get_by_id"
	ActionGetAll  = "get_all"
)

// Broadcaster delivers a notification to all live realtime subscribers.
type Broadcaster interface {
	Broadcast(v interface{})
}

// Service coordinates event persistence with dual-sink fan-out. The storage
// write always happens first; broadcast and publish follow best-effort and
// never fail the operation.
type Service struct {
	repo    repository.Repository
	hub     Broadcaster
	bus     messaging.Publisher
	subject string
}

// NewService creates a coordinator over the given storage, realtime, and
// bus sinks. subject is the bus subject notifications are published to.
func NewService(repo repository.Repository, hub Broadcaster, bus messaging.Publisher, subject string) *Service {
	return &Service{
		repo:    repo,
		hub:     hub,
		bus:     bus,
		subject: subject,
	}
}

// wsNotification is the JSON object pushed to WebSocket subscribers.
type wsNotification struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// busRecord is the bus payload for create/update: the full record plus the
// action discriminator.
type busRecord struct {
	*models.Event
	Type string `json:"type"`
}

// busDeletion is the bus payload for delete.
type busDeletion struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Create validates and persists a new event, then notifies both sinks.
func (s *Service) Create(ctx context.Context, req *models.CreateEventRequest) (*models.Event, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	e := &models.Event{
		ID:             id.String(),
		EventID:        req.EventID,
		EventType:      req.EventType,
		Title:          req.Title,
		Description:    req.Description,
		Author:         req.Author,
		URL:            req.URL,
		Repository:     req.Repository,
		RawData:        req.RawData,
		CommitHash:     req.CommitHash,
		IssueNumber:    req.IssueNumber,
		ReleaseVersion: req.ReleaseVersion,
		CreatedAt:      time.Now().UTC(),
	}

	if err := e.ValidateTypeFields(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.broadcast(ActionCreate, e.ID)
	s.publish(ctx, &busRecord{Event: e, Type: ActionCreate})

	return e, nil
}

// Update applies a partial field patch: non-nil request fields overwrite the
// stored value, absent fields are left untouched. Notifies both sinks after
// the write commits.
func (s *Service) Update(ctx context.Context, id string, req *models.UpdateEventRequest) (*models.Event, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	applyPatch(e, req)

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}

	s.broadcast(ActionUpdate, e.ID)
	s.publish(ctx, &busRecord{Event: e, Type: ActionUpdate})

	return e, nil
}

// Delete removes an event by id. Deleting an unknown identifier succeeds
// per the storage contract; notifications are sent only after the storage
// delete returns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.broadcast(ActionDelete, id)
	s.publish(ctx, &busDeletion{ID: id, Type: ActionDelete})

	return nil
}

// GetByID fetches one event. Realtime subscribers observe the read.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.broadcast(ActionGetByID, e.ID)

	return e, nil
}

// List returns a paged envelope of events. Realtime subscribers observe
// the read.
func (s *Service) List(ctx context.Context, req *models.ListEventsRequest) (*models.ListEventsResponse, error) {
	events, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, err
	}

	s.broadcast(ActionGetAll, "")

	pageSize := req.Limit
	totalPages := 1
	if req.Limit == -1 {
		pageSize = total
	} else if req.Limit > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}

	return &models.ListEventsResponse{
		PageNumber:  req.Page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalRecord: total,
		Content:     events,
	}, nil
}

func (s *Service) broadcast(action, id string) {
	s.hub.Broadcast(wsNotification{Type: action, ID: id})
}

func (s *Service) publish(ctx context.Context, payload interface{}) {
	if err := s.bus.PublishJSON(ctx, s.subject, payload); err != nil {
		slog.Warn("bus publish failed",
			logging.Subject(s.subject),
			logging.Error(err),
		)
		metrics.FanoutErrors.WithLabelValues("bus").Inc()
	}
}

// applyPatch merges non-nil request fields into the event, field by field.
func applyPatch(e *models.Event, req *models.UpdateEventRequest) {
	if req.EventID != nil {
		e.EventID = *req.EventID
	}
	if req.EventType != nil {
		e.EventType = *req.EventType
	}
	if req.Title != nil {
		e.Title = *req.Title
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Author != nil {
		e.Author = *req.Author
	}
	if req.URL != nil {
		e.URL = *req.URL
	}
	if req.Repository != nil {
		e.Repository = *req.Repository
	}
	if req.RawData != nil {
		e.RawData = *req.RawData
	}
	if req.CommitHash != nil {
		e.CommitHash = req.CommitHash
	}
	if req.IssueNumber != nil {
		e.IssueNumber = req.IssueNumber
	}
	if req.ReleaseVersion != nil {
		e.ReleaseVersion = req.ReleaseVersion
	}
}
