package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitpulse/gitpulse/internal/dedup"
	"github.com/gitpulse/gitpulse/internal/github"
	"github.com/gitpulse/gitpulse/internal/logging"
	"github.com/gitpulse/gitpulse/internal/metrics"
	"github.com/gitpulse/gitpulse/internal/models"
	"github.com/gitpulse/gitpulse/internal/repository"
)

// Fetcher pulls the three upstream collections. *github.Client is the
// production implementation.
type Fetcher interface {
	Commits(ctx context.Context) ([]github.Commit, error)
	Issues(ctx context.Context) ([]github.Issue, error)
	Releases(ctx context.Context) ([]github.Release, error)
	Repo() string
}

// Reconciler periodically pulls GitHub activity, deduplicates it against
// persisted state by natural key, and creates the missing records through
// the coordinator so every new event is fanned out.
type Reconciler struct {
	fetcher Fetcher
	svc     *Service
	repo    repository.Repository
	cache   dedup.KeyCache
}

// NewReconciler wires a reconciler over the upstream fetcher, the
// coordinator, and the dedup key cache.
func NewReconciler(fetcher Fetcher, svc *Service, repo repository.Repository, cache dedup.KeyCache) *Reconciler {
	return &Reconciler{
		fetcher: fetcher,
		svc:     svc,
		repo:    repo,
		cache:   cache,
	}
}

// Reconcile runs one full fetch-dedupe-create pass over commits, issues,
// and releases and returns the number of records created. The cycle aborts
// on the first fetch or storage failure; records created before the failure
// stay durable.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	start := time.Now()
	created := 0

	err := r.reconcileAll(ctx, &created)

	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcileCycles.WithLabelValues("failure").Inc()
		return created, err
	}
	metrics.ReconcileCycles.WithLabelValues("success").Inc()
	return created, nil
}

func (r *Reconciler) reconcileAll(ctx context.Context, created *int) error {
	repoName := r.fetcher.Repo()

	commits, err := r.fetcher.Commits(ctx)
	if err != nil {
		return fmt.Errorf("fetch commits: %w", err)
	}
	for _, c := range commits {
		if err := r.ingestOne(ctx, c.SHA, commitRequest(c, repoName), created); err != nil {
			return err
		}
	}

	issues, err := r.fetcher.Issues(ctx)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}
	for _, i := range issues {
		req := issueRequest(i, repoName)
		if err := r.ingestOne(ctx, req.EventID, req, created); err != nil {
			return err
		}
	}

	releases, err := r.fetcher.Releases(ctx)
	if err != nil {
		return fmt.Errorf("fetch releases: %w", err)
	}
	for _, rel := range releases {
		if err := r.ingestOne(ctx, rel.TagName, releaseRequest(rel, repoName), created); err != nil {
			return err
		}
	}

	return nil
}

// ingestOne creates the record for one upstream item unless its natural key
// is already persisted. A concurrent create for the same key is resolved by
// the storage uniqueness constraint and counted as a skip.
func (r *Reconciler) ingestOne(ctx context.Context, key string, req *models.CreateEventRequest, created *int) error {
	// Cache errors degrade to a repository check.
	if seen, err := r.cache.Seen(ctx, key); err == nil && seen {
		return nil
	}

	exists, err := r.repo.ExistsByEventID(ctx, key)
	if err != nil {
		return fmt.Errorf("check existence of %s: %w", key, err)
	}
	if exists {
		if err := r.cache.Add(ctx, key); err != nil {
			slog.Debug("dedup cache add failed", logging.EventID(key), logging.Error(err))
		}
		return nil
	}

	if _, err := r.svc.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateEventID) {
			// Lost the race to a concurrent create for the same key.
			slog.Debug("skipping concurrently created event", logging.EventID(key))
			return nil
		}
		return fmt.Errorf("create event %s: %w", key, err)
	}

	metrics.EventsCreated.WithLabelValues(string(req.EventType)).Inc()
	*created++

	if err := r.cache.Add(ctx, key); err != nil {
		slog.Debug("dedup cache add failed", logging.EventID(key), logging.Error(err))
	}
	return nil
}

// Run executes reconciliation cycles on a fixed interval until ctx is
// cancelled. The first cycle runs immediately. Cycle failures are logged
// and the loop always proceeds to the next tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("reconciler started", slog.String("interval", interval.String()))

	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Reconciler) runCycle(ctx context.Context) {
	created, err := r.Reconcile(ctx)
	if err != nil {
		slog.Error("reconciliation cycle failed",
			slog.Int(logging.FieldCreated, created),
			logging.Error(err),
		)
		return
	}
	slog.Info("reconciliation cycle complete", slog.Int(logging.FieldCreated, created))
}
