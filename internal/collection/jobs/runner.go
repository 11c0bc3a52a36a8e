// Package jobs runs bulk collection migrations in the background so HTTP
// callers can poll for the report instead of holding a request open.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trialstore/internal/cache"
	"trialstore/internal/collection/models"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one queued MigrateCollection call.
type Job struct {
	ID         string                  `json:"id"`
	Collection string                  `json:"collection"`
	From       schema.Context          `json:"from_context"`
	To         schema.Context          `json:"to_context"`
	Status     Status                  `json:"status"`
	Report     *models.MigrationReport `json:"report,omitempty"`
	Error      string                  `json:"error,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	StartedAt  *time.Time              `json:"started_at,omitempty"`
	FinishedAt *time.Time              `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a final state.
func (j *Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Migrator is the collection service.
type Migrator interface {
	MigrateCollection(ctx context.Context, collection string, from, to schema.Context) (*models.MigrationReport, error)
}

type request struct {
	ctx context.Context
	id  string
}

// Runner queues jobs and executes them one at a time. Finished jobs move to
// the analysis cache when one is configured, so any instance sharing it can
// answer Get and the in-memory table only holds unfinished work.
type Runner struct {
	migrator Migrator
	results  *cache.AnalyticsCache
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	jobs  map[string]*Job
	queue chan request
}

// Option configures a Runner.
type Option func(*Runner)

func WithResults(c *cache.AnalyticsCache) Option {
	return func(r *Runner) { r.results = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(migrator Migrator, queueSize int, opts ...Option) *Runner {
	if queueSize <= 0 {
		queueSize = 16
	}
	r := &Runner{
		migrator: migrator,
		logger:   slog.Default(),
		now:      time.Now,
		jobs:     make(map[string]*Job),
		queue:    make(chan request, queueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit queues a migration. The job keeps ctx's values (request id,
// operator) but not its cancellation.
func (r *Runner) Submit(ctx context.Context, collection string, from, to schema.Context) (*Job, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from and to must be schema contexts")
	}
	job := &Job{
		ID:         uuid.NewString(),
		Collection: collection,
		From:       from,
		To:         to,
		Status:     StatusQueued,
		CreatedAt:  r.now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case r.queue <- request{ctx: context.WithoutCancel(ctx), id: job.ID}:
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "migration queue is full")
	}
	r.jobs[job.ID] = job
	snapshot := *job
	return &snapshot, nil
}

// Get returns a copy of the job.
func (r *Runner) Get(ctx context.Context, id string) (*Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	r.mu.RUnlock()
	if ok {
		return &snapshot, nil
	}
	if r.results != nil {
		var cached Job
		if r.results.Analysis(ctx, id, &cached) {
			return &cached, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "migration job not found")
}

// Run executes queued jobs until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.queue:
			r.execute(req)
		}
	}
}

func (r *Runner) execute(req request) {
	started := r.now().UTC()
	job := r.update(req.id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})
	if job == nil {
		return
	}

	report, err := r.migrator.MigrateCollection(req.ctx, job.Collection, job.From, job.To)

	finished := r.now().UTC()
	job = r.update(req.id, func(j *Job) {
		j.Report = report
		j.FinishedAt = &finished
		switch {
		case err != nil:
			j.Status = StatusFailed
			j.Error = dErrors.MessageOf(err)
			if j.Error == "" {
				j.Error = "internal error"
			}
		case report != nil && report.Failed > 0:
			j.Status = StatusFailed
			j.Error = "some documents failed to migrate"
		default:
			j.Status = StatusSucceeded
		}
	})
	r.logger.InfoContext(req.ctx, "migration job finished",
		"job_id", job.ID,
		"collection", job.Collection,
		"status", string(job.Status),
	)
	if r.results != nil && r.results.SetAnalysis(req.ctx, job.ID, job) {
		r.mu.Lock()
		delete(r.jobs, job.ID)
		r.mu.Unlock()
	}
}

func (r *Runner) update(id string, fn func(*Job)) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	fn(job)
	snapshot := *job
	return &snapshot
}
