package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mvidal/trellis/internal/catalog"
	"github.com/mvidal/trellis/pkg/schema"
)

// WorkflowRunner is the interface the scheduler uses to run workflows.
// Satisfied by the engine runner.
type WorkflowRunner interface {
	Run(ctx context.Context, def *schema.WorkflowDefinition, query string) *schema.ExecutionResult
}

// job is one scheduled catalog entry with its precomputed fire time.
type job struct {
	entry    *catalog.Entry
	schedule cron.Schedule
	nextRun  time.Time
}

// Scheduler triggers catalog entries that carry a cron schedule. Runs are
// strictly sequential per workflow: a tick skips an entry that is still
// executing from a previous fire.
type Scheduler struct {
	catalog *catalog.Catalog
	runner  WorkflowRunner
	parser  cron.Parser
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // workflow names currently executing (dedup)
}

// New creates a new Scheduler over the catalog's scheduled entries.
func New(cat *catalog.Catalog, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		catalog:  cat,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	jobs, err := s.buildJobs(time.Now().UTC())
	if err != nil {
		s.mu.Unlock()
		return err
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx, jobs)
	s.logger.Info("scheduler started", "jobs", len(jobs))
	return nil
}

// buildJobs parses every scheduled entry's cron expression. A malformed
// expression fails startup rather than being skipped silently.
func (s *Scheduler) buildJobs(now time.Time) ([]*job, error) {
	var jobs []*job
	for _, entry := range s.catalog.Scheduled() {
		sched, err := s.parser.Parse(entry.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parse cron expression %q for workflow %q: %w",
				entry.Schedule, entry.Definition.Name, err)
		}
		jobs = append(jobs, &job{
			entry:    entry,
			schedule: sched,
			nextRun:  sched.Next(now),
		})
	}
	return jobs, nil
}

func (s *Scheduler) loop(ctx context.Context, jobs []*job) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, jobs, time.Now().UTC())
		}
	}
}

// tick fires every job whose next run time has passed.
func (s *Scheduler) tick(ctx context.Context, jobs []*job, now time.Time) {
	for _, j := range jobs {
		if j.nextRun.After(now) {
			continue
		}
		j.nextRun = j.schedule.Next(now)

		name := j.entry.Definition.Name
		if !s.tryAcquire(name) {
			s.logger.Info("skipping scheduled run, previous run still in flight",
				slog.String("workflow", name))
			continue
		}

		go func(j *job, name string) {
			defer s.release(name)
			s.runJob(ctx, j)
		}(j, name)
	}
}

// runJob executes one scheduled workflow with its default query.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	name := j.entry.Definition.Name
	s.logger.Info("running scheduled workflow", slog.String("workflow", name))

	result := s.runner.Run(ctx, j.entry.Definition, j.entry.DefaultQuery)
	if !result.Success {
		s.logger.Error("scheduled workflow failed",
			slog.String("workflow", name),
			slog.String("run_id", result.RunID),
			slog.String("error", result.Error),
		)
		return
	}
	s.logger.Info("scheduled workflow completed",
		slog.String("workflow", name),
		slog.String("run_id", result.RunID),
		slog.Int64("duration_ms", result.DurationMs),
	)
}

// tryAcquire returns true and marks the workflow as in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

// release removes the workflow from the in-flight set.
func (s *Scheduler) release(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// NextRun computes the next fire time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
