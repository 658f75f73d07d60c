package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitpulse/gitpulse/internal/dedup"
	"github.com/gitpulse/gitpulse/internal/github"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/repository"
	"github.com/gitpulse/gitpulse/internal/service"
)

// noopBroadcaster satisfies service.Broadcaster.
type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(v interface{}) {}

// noopPublisher satisfies messaging.Publisher.
type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return nil
}

func (noopPublisher) PublishJSON(ctx context.Context, subject string, data interface{}) error {
	return nil
}

func (noopPublisher) Close() error { return nil }

// staticFetcher serves a fixed set of upstream activity.
type staticFetcher struct {
	commits []github.Commit
	err     error
}

func (f *staticFetcher) Commits(ctx context.Context) ([]github.Commit, error) {
	return f.commits, f.err
}

func (f *staticFetcher) Issues(ctx context.Context) ([]github.Issue, error) {
	return nil, f.err
}

func (f *staticFetcher) Releases(ctx context.Context) ([]github.Release, error) {
	return nil, f.err
}

func (f *staticFetcher) Repo() string { return "acme/widgets" }

func newTestHandler(fetcher service.Fetcher) (*Handler, *repository.InMemoryRepository) {
	repo := repository.NewInMemoryRepository()
	svc := service.NewService(repo, noopBroadcaster{}, noopPublisher{}, "github.events")
	reconciler := service.NewReconciler(fetcher, svc, repo, dedup.NoopCache{})
	return NewHandler(svc, reconciler, repo), repo
}

// newTestMux registers the handler under the production route patterns so
// path values resolve.
func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("POST /api/v1/events", h.CreateEvent)
	mux.HandleFunc("GET /api/v1/events/{id}", h.GetEvent)
	mux.HandleFunc("PATCH /api/v1/events/{id}", h.UpdateEvent)
	mux.HandleFunc("DELETE /api/v1/events/{id}", h.DeleteEvent)
	mux.HandleFunc("POST /api/v1/events/task-generator/run", h.RunReconcile)
	mux.HandleFunc("GET /health", h.Health)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func createTestEvent(t *testing.T, mux *http.ServeMux, eventID string) *models.Event {
	t.Helper()

	hash := eventID
	w := doRequest(t, mux, http.MethodPost, "/api/v1/events", &models.CreateEventRequest{
		EventID:    eventID,
		EventType:  models.EventTypeCommit,
		Title:      "fix bug",
		Author:     "alice",
		Repository: "acme/widgets",
		CommitHash: &hash,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var e models.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&e))
	return &e
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	w := doRequest(t, mux, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestCreateEvent(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	e := createTestEvent(t, mux, "a1b2c3")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "a1b2c3", e.EventID)

	t.Run("duplicate event_id conflicts", func(t *testing.T) {
		hash := "a1b2c3"
		w := doRequest(t, mux, http.MethodPost, "/api/v1/events", &models.CreateEventRequest{
			EventID:    "a1b2c3",
			EventType:  models.EventTypeCommit,
			CommitHash: &hash,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodPost, "/api/v1/events", &models.CreateEventRequest{
			EventID:   "d4e5f6",
			EventType: models.EventTypeCommit,
			// commit_hash missing
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString("{not json"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetEvent(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	created := createTestEvent(t, mux, "a1b2c3")

	w := doRequest(t, mux, http.MethodGet, "/api/v1/events/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var e models.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&e))
	assert.Equal(t, created.ID, e.ID)

	w = doRequest(t, mux, http.MethodGet, "/api/v1/events/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEvents(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	for i := 0; i < 5; i++ {
		createTestEvent(t, mux, fmt.Sprintf("sha-%d", i))
	}

	t.Run("defaults return everything", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ListEventsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 1, resp.PageNumber)
		assert.Equal(t, 5, resp.PageSize)
		assert.Equal(t, 1, resp.TotalPages)
		assert.Equal(t, 5, resp.TotalRecord)
		assert.Len(t, resp.Content, 5)
	})

	t.Run("pagination", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events?page=2&limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ListEventsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 2, resp.PageNumber)
		assert.Equal(t, 2, resp.PageSize)
		assert.Equal(t, 3, resp.TotalPages)
		assert.Equal(t, 5, resp.TotalRecord)
		assert.Len(t, resp.Content, 2)
	})

	t.Run("search", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events?search=sha-3", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ListEventsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 1, resp.TotalRecord)
	})

	t.Run("sort descending", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events?sort_by=event_id&desc=1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.ListEventsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		require.Len(t, resp.Content, 5)
		assert.Equal(t, "sha-4", resp.Content[0].EventID)
	})

	t.Run("invalid page", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events?page=0", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown sort field", func(t *testing.T) {
		w := doRequest(t, mux, http.MethodGet, "/api/v1/events?sort_by=favorite_color", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateEvent(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	created := createTestEvent(t, mux, "a1b2c3")

	title := "patched title"
	w := doRequest(t, mux, http.MethodPatch, "/api/v1/events/"+created.ID, &models.UpdateEventRequest{
		Title: &title,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var e models.Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&e))
	assert.Equal(t, "patched title", e.Title)
	assert.Equal(t, "fix bug", created.Title)
	assert.Equal(t, created.EventID, e.EventID)
	assert.NotNil(t, e.UpdatedAt)

	w = doRequest(t, mux, http.MethodPatch, "/api/v1/events/does-not-exist", &models.UpdateEventRequest{
		Title: &title,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEvent(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{})
	mux := newTestMux(h)

	created := createTestEvent(t, mux, "a1b2c3")

	w := doRequest(t, mux, http.MethodDelete, "/api/v1/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, mux, http.MethodGet, "/api/v1/events/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting an unknown id still succeeds.
	w = doRequest(t, mux, http.MethodDelete, "/api/v1/events/does-not-exist", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRunReconcile(t *testing.T) {
	fetcher := &staticFetcher{
		commits: []github.Commit{
			{SHA: "a1b2c3", Message: "fix bug", Author: "alice"},
		},
	}
	h, repo := newTestHandler(fetcher)
	mux := newTestMux(h)

	w := doRequest(t, mux, http.MethodPost, "/api/v1/events/task-generator/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["created"])

	exists, err := repo.ExistsByEventID(context.Background(), "a1b2c3")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunReconcileUpstreamFailure(t *testing.T) {
	h, _ := newTestHandler(&staticFetcher{err: github.ErrUpstreamUnavailable})
	mux := newTestMux(h)

	w := doRequest(t, mux, http.MethodPost, "/api/v1/events/task-generator/run", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
