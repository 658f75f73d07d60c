package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gitpulse/gitpulse/internal/models"
)

// InMemoryRepository is a map-backed Repository used in tests and local
// development. It enforces the same event_id uniqueness as the Postgres
// implementation.
type InMemoryRepository struct {
	events     map[string]*models.Event
	byEventID  map[string]string // event_id -> id
	insertions []string          // ids in insertion order
	mu         sync.RWMutex
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events:    make(map[string]*models.Event),
		byEventID: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEventID[e.EventID]; exists {
		return ErrDuplicateEventID
	}

	cp := *e
	r.events[e.ID] = &cp
	r.byEventID[e.EventID] = e.ID
	r.insertions = append(r.insertions, e.ID)
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.events[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryRepository) ExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.byEventID[eventID]
	return exists, nil
}

func (r *InMemoryRepository) List(ctx context.Context, req *models.ListEventsRequest) ([]*models.Event, int, error) {
	if req.Page < 1 {
		return nil, 0, ErrInvalidPage
	}
	if req.SortBy != "" {
		if _, ok := sortColumns[req.SortBy]; !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnknownField, req.SortBy)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Event, 0, len(r.events))
	for _, id := range r.insertions {
		e, ok := r.events[id]
		if !ok {
			continue
		}
		if req.Search != "" && !matchesSearch(e, req.Search) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sortEvents(matched, req.SortBy, req.Desc)

	total := len(matched)
	if req.Limit == -1 {
		return matched, total, nil
	}

	start := (req.Page - 1) * req.Limit
	if start >= total {
		return []*models.Event{}, total, nil
	}
	end := start + req.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.events[e.ID]
	if !exists {
		return ErrNotFound
	}

	if other, taken := r.byEventID[e.EventID]; taken && other != e.ID {
		return ErrDuplicateEventID
	}

	now := time.Now().UTC()
	delete(r.byEventID, stored.EventID)

	cp := *e
	cp.UpdatedAt = &now
	r.events[e.ID] = &cp
	r.byEventID[cp.EventID] = e.ID

	e.UpdatedAt = &now
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.events[id]
	if !exists {
		// No-op success, matching the storage delete contract.
		return nil
	}

	delete(r.byEventID, e.EventID)
	delete(r.events, id)
	for i, stored := range r.insertions {
		if stored == id {
			r.insertions = append(r.insertions[:i], r.insertions[i+1:]...)
			break
		}
	}
	return nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}

func matchesSearch(e *models.Event, term string) bool {
	term = strings.ToLower(term)
	for _, v := range []string{e.Title, e.Description, e.Author, e.EventID} {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func sortEvents(events []*models.Event, sortBy string, desc bool) {
	if sortBy == "" {
		// Default ordering matches Postgres: newest first.
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		})
		return
	}

	less := func(i, j int) bool {
		a, b := events[i], events[j]
		switch sortBy {
		case "event_id":
			return a.EventID < b.EventID
		case "event_type":
			return a.EventType < b.EventType
		case "title":
			return a.Title < b.Title
		case "author":
			return a.Author < b.Author
		case "repository":
			return a.Repository < b.Repository
		case "updated_at":
			at, bt := a.UpdatedAt, b.UpdatedAt
			if at == nil {
				return bt != nil
			}
			if bt == nil {
				return false
			}
			return at.Before(*bt)
		default: // created_at
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	if desc {
		sort.SliceStable(events, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(events, less)
	}
}
