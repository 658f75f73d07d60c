package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitpulse/gitpulse/internal/database"
	"github.com/gitpulse/gitpulse/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

const eventColumns = `
	id, event_id, event_type, title, description, author, url, repository,
	raw_data, commit_hash, issue_number, release_version, created_at, updated_at`

// Create inserts a new event. The event_id unique index is the authoritative
// guard against duplicate natural keys: a concurrent insert for the same
// event_id fails here with ErrDuplicateEventID.
func (r *PostgresRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO github_events (
			id, event_id, event_type, title, description, author, url,
			repository, raw_data, commit_hash, issue_number, release_version,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.EventID, e.EventType, e.Title, e.Description, e.Author,
		e.URL, e.Repository, e.RawData, e.CommitHash, e.IssueNumber,
		e.ReleaseVersion, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEventID
		}
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its primary key
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM github_events WHERE id = $1`, eventColumns)

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	e := &models.Event{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.EventID, &e.EventType, &e.Title, &e.Description, &e.Author,
		&e.URL, &e.Repository, &e.RawData, &e.CommitHash, &e.IssueNumber,
		&e.ReleaseVersion, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return e, nil
}

// ExistsByEventID reports whether an event with the given natural key exists.
// Absence is the expected common case and is not an error.
func (r *PostgresRepository) ExistsByEventID(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM github_events WHERE event_id = $1)", eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// List retrieves a paginated, optionally searched and sorted list of events
// together with the total record count.
func (r *PostgresRepository) List(ctx context.Context, req *models.ListEventsRequest) ([]*models.Event, int, error) {
	if req.Page < 1 {
		return nil, 0, ErrInvalidPage
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	whereClause := ""
	args := []interface{}{}
	argPos := 1

	if req.Search != "" {
		conditions := make([]string, 0, len(searchColumns))
		for _, col := range searchColumns {
			conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", col, argPos))
		}
		whereClause = "WHERE " + strings.Join(conditions, " OR ")
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	// Count total before paging
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM github_events %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	orderClause := "ORDER BY created_at DESC"
	if req.SortBy != "" {
		col, ok := sortColumns[req.SortBy]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnknownField, req.SortBy)
		}
		dir := "ASC"
		if req.Desc {
			dir = "DESC"
		}
		orderClause = fmt.Sprintf("ORDER BY %s %s", col, dir)
	}

	limitClause := ""
	if req.Limit != -1 {
		limitClause = fmt.Sprintf("LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, req.Limit, (req.Page-1)*req.Limit)
	}

	query := fmt.Sprintf(`SELECT %s FROM github_events %s %s %s`,
		eventColumns, whereClause, orderClause, limitClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		e := &models.Event{}
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.EventType, &e.Title, &e.Description, &e.Author,
			&e.URL, &e.Repository, &e.RawData, &e.CommitHash, &e.IssueNumber,
			&e.ReleaseVersion, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return events, total, nil
}

// Update writes all mutable fields of the event and stamps updated_at.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE github_events
		SET event_id = $1, event_type = $2, title = $3, description = $4,
		    author = $5, url = $6, repository = $7, raw_data = $8,
		    commit_hash = $9, issue_number = $10, release_version = $11,
		    updated_at = $12
		WHERE id = $13
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		e.EventID, e.EventType, e.Title, e.Description, e.Author, e.URL,
		e.Repository, e.RawData, e.CommitHash, e.IssueNumber,
		e.ReleaseVersion, now, e.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEventID
		}
		return fmt.Errorf("failed to update event: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	e.UpdatedAt = &now
	return nil
}

// Delete removes an event by id. Deleting an identifier that does not exist
// is a no-op success.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, "DELETE FROM github_events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// Ping verifies database connectivity for health checks.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
