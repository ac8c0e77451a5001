package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// DefaultStaleAfter is how long a processing job may go without a
// history checkpoint before it is considered stuck.
const DefaultStaleAfter = time.Hour

// DefaultErrorPreview is how many error lines the summary shows.
const DefaultErrorPreview = 10

// Worker drives queued import jobs, one per tick. Mutual exclusion is
// the processing-state check: a tick is a no-op while any job is
// processing. There is no lease or heartbeat; a crashed run is
// recovered by the staleness sweep at the start of the next tick.
type Worker struct {
	jobs      repository.JobStore
	history   repository.JobHistoryStore
	errors    repository.ImportErrorStore
	templates repository.MappingTemplateStore

	pipe         pipeline
	staleAfter   time.Duration
	errorPreview int

	// now is a seam for tests.
	now func() time.Time
	log *slog.Logger
}

// WorkerOption customizes a Worker.
type WorkerOption func(*Worker)

// WithStaleAfter overrides the stuck-job threshold.
func WithStaleAfter(d time.Duration) WorkerOption {
	return func(w *Worker) { w.staleAfter = d }
}

// WithErrorPreview overrides the number of error lines in summaries.
func WithErrorPreview(n int) WorkerOption {
	return func(w *Worker) { w.errorPreview = n }
}

// WithClock overrides the worker's time source.
func WithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker wires a queue worker over the given stores and pipeline
// components.
func NewWorker(
	jobs repository.JobStore,
	history repository.JobHistoryStore,
	errs repository.ImportErrorStore,
	templates repository.MappingTemplateStore,
	scanner *Scanner,
	reconciler *Reconciler,
	post *PostProcessor,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		jobs:         jobs,
		history:      history,
		errors:       errs,
		templates:    templates,
		pipe:         pipeline{scanner: scanner, reconciler: reconciler, post: post},
		staleAfter:   DefaultStaleAfter,
		errorPreview: DefaultErrorPreview,
		now:          time.Now,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run ticks the worker at the given interval until the context is
// cancelled. An external scheduler may call Tick directly instead.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	w.log.Info("import worker started", "interval", interval, "stale_after", w.staleAfter)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("import worker stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.log.Error("worker tick failed", "error", err)
			}
		}
	}
}

// Tick processes at most one queued job. Calling it with no queued
// work is a no-op. The sequence per tick:
//
//  1. Staleness sweep: processing jobs with no checkpoint for longer
//     than the threshold are forced to failed.
//  2. Mutual exclusion: if any job is still processing, return.
//  3. Pick the oldest queued job (FIFO) and execute it.
func (w *Worker) Tick(ctx context.Context) error {
	if err := w.sweepStale(ctx); err != nil {
		return err
	}

	processing, err := w.jobs.ListProcessing(ctx)
	if err != nil {
		return fmt.Errorf("check processing jobs: %w", err)
	}
	if len(processing) > 0 {
		return nil
	}

	job, ok, err := w.jobs.NextQueued(ctx)
	if err != nil {
		return fmt.Errorf("pick queued job: %w", err)
	}
	if !ok {
		return nil
	}

	return w.Execute(ctx, job)
}

// sweepStale force-fails processing jobs whose history has not
// checkpointed within the staleness threshold. This is the only
// recovery path for a run that never returned (host crash mid-import).
// Only jobs still in processing are swept: a manually requeued job may
// carry a running history with an old checkpoint, and it must be picked
// up again, not failed.
func (w *Worker) sweepStale(ctx context.Context) error {
	cutoff := w.now().Add(-w.staleAfter)
	stale, err := w.history.StaleRunning(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale jobs: %w", err)
	}

	for _, jobID := range stale {
		job, err := w.jobs.GetByID(ctx, jobID)
		if err != nil || job.State != domain.JobProcessing {
			continue
		}
		w.log.Warn("stale import job detected", "job_id", jobID, "stale_after", w.staleAfter)

		if err := w.jobs.SetState(ctx, jobID, domain.JobFailed); err != nil {
			return fmt.Errorf("fail stale job %s: %w", jobID, err)
		}
		summary := fmt.Sprintf("import timed out: no progress for more than %s", w.staleAfter)
		if err := w.history.Finish(ctx, jobID, domain.HistoryFailed, domain.JobCounts{}, summary, 0); err != nil {
			return fmt.Errorf("finish stale job %s: %w", jobID, err)
		}
	}
	return nil
}

// Execute runs one job through the pipeline, from pick to terminal
// state. It is also the synchronous path for direct imports.
func (w *Worker) Execute(ctx context.Context, job domain.ImportJob) error {
	start := w.now()
	log := w.log.With("job_id", job.ID, "supplier_id", job.SupplierID, "file", job.FileName)

	if err := w.jobs.SetState(ctx, job.ID, domain.JobProcessing); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}
	// First durable checkpoint before any row work: a freshly picked
	// job must read as "fresh" to the staleness sweep.
	if err := w.history.Start(ctx, job.ID, job.Mapping); err != nil {
		w.fail(ctx, job, start, fmt.Errorf("start job history: %w", err))
		return nil
	}

	// The mapping outlives the job regardless of outcome: merge it
	// into the supplier's reusable template before processing.
	w.archiveMapping(ctx, job, log)

	log.Info("import started")

	res, err := w.runPipeline(ctx, job)
	if err != nil {
		log.Error("import failed", "error", err)
		w.failWithCounts(ctx, job, start, res.Counts, err)
		return nil
	}

	elapsed := w.now().Sub(start)
	summary := renderSummary(job, res, elapsed, w.errorPreview)

	if err := w.history.Finish(ctx, job.ID, domain.HistoryFinished, res.Counts, summary, elapsed); err != nil {
		w.failWithCounts(ctx, job, start, res.Counts, fmt.Errorf("finish job history: %w", err))
		return nil
	}
	if err := w.errors.CreateBatch(ctx, errorRecords(job, res)); err != nil {
		w.failWithCounts(ctx, job, start, res.Counts, fmt.Errorf("record import errors: %w", err))
		return nil
	}
	if err := w.jobs.SetState(ctx, job.ID, domain.JobDone); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}

	log.Info("import finished",
		"rows", res.Counts.TotalRows,
		"created", res.Counts.Created,
		"updated", res.Counts.Updated,
		"skipped", res.Counts.Skipped,
		"errors", res.Counts.Errors,
		"removed", res.Counts.Removed,
		"duration", elapsed,
	)
	return nil
}

// runPipeline executes the stages with panic recovery: a panic inside
// the pipeline is converted to a job failure, not a worker crash.
func (w *Worker) runPipeline(ctx context.Context, job domain.ImportJob) (res runResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during import: %v", r)
		}
	}()

	checkpoint := func(stage string, counts domain.JobCounts) error {
		return w.history.Checkpoint(ctx, job.ID, stage, counts)
	}
	return w.pipe.run(ctx, job, checkpoint)
}

// archiveMapping merges the job's mapping into the supplier template.
// A save failure is logged, not fatal: losing the template must not
// block the import itself.
func (w *Worker) archiveMapping(ctx context.Context, job domain.ImportJob, log *slog.Logger) {
	merged := job.Mapping
	if existing, ok, err := w.templates.Get(ctx, job.SupplierID); err != nil {
		log.Warn("load mapping template failed", "error", err)
	} else if ok {
		merged = existing.Merge(job.Mapping)
	}

	if err := w.templates.Save(ctx, job.SupplierID, merged); err != nil {
		log.Warn("archive mapping template failed", "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, job domain.ImportJob, start time.Time, cause error) {
	w.failWithCounts(ctx, job, start, domain.JobCounts{}, cause)
}

// failWithCounts transitions the job to failed and records the cause
// in the history summary. Counts collected before the failure are
// preserved: completed stages stay committed.
func (w *Worker) failWithCounts(ctx context.Context, job domain.ImportJob, start time.Time, counts domain.JobCounts, cause error) {
	elapsed := w.now().Sub(start)

	if err := w.jobs.SetState(ctx, job.ID, domain.JobFailed); err != nil {
		w.log.Error("mark job failed", "job_id", job.ID, "error", err)
	}
	summary := "import failed: " + cause.Error()
	if err := w.history.Finish(ctx, job.ID, domain.HistoryFailed, counts, summary, elapsed); err != nil {
		w.log.Error("record job failure", "job_id", job.ID, "error", err)
	}
}
