package repository

import (
	"context"
	"errors"

	"github.com/gitpulse/gitpulse/internal/models"
)

var (
	// ErrNotFound is returned when no event matches the requested identifier.
	ErrNotFound = errors.New("event not found")

	// ErrDuplicateEventID is returned when a write would violate the
	// event_id uniqueness constraint.
	ErrDuplicateEventID = errors.New("event with this event_id already exists")

	// ErrInvalidPage is returned for page numbers below 1.
	ErrInvalidPage = errors.New("page number must be greater than 0")

	// ErrUnknownField is returned when a sort or search field name is not
	// a recognized event attribute.
	ErrUnknownField = errors.New("unknown field")
)

// Repository is the storage capability the event service depends on.
// Any engine implementing it is substitutable; see PostgresRepository for
// the production implementation and InMemoryRepository for tests.
type Repository interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	ExistsByEventID(ctx context.Context, eventID string) (bool, error)
	List(ctx context.Context, req *models.ListEventsRequest) ([]*models.Event, int, error)
	Update(ctx context.Context, e *models.Event) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// sortColumns maps accepted sort_by values to table columns.
var sortColumns = map[string]string{
	"event_id":   "event_id",
	"event_type": "event_type",
	"title":      "title",
	"author":     "author",
	"repository": "repository",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// searchColumns are the text columns a search term is matched against.
var searchColumns = []string{"title", "description", "author", "event_id"}
