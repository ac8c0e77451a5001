package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/mapping"
)

// workerFixture wires a worker over the in-memory fakes with a
// controllable clock.
type workerFixture struct {
	jobs      *fakeJobs
	history   *fakeHistory
	errors    *fakeErrors
	templates *fakeTemplates
	catalog   *fakeCatalog
	prices    *fakePrices
	worker    *Worker
	now       time.Time
}

func newWorkerFixture(opts ...WorkerOption) *workerFixture {
	f := &workerFixture{
		jobs:      newFakeJobs(),
		history:   newFakeHistory(),
		errors:    newFakeErrors(),
		templates: newFakeTemplates(),
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.prices = newFakePrices()
	f.catalog = newFakeCatalog(f.prices)
	f.history.now = func() time.Time { return f.now }

	opts = append([]WorkerOption{WithClock(func() time.Time { return f.now })}, opts...)
	f.worker = NewWorker(
		f.jobs, f.history, f.errors, f.templates,
		NewScanner(f.catalog, f.prices),
		NewReconciler(f.prices),
		NewPostProcessor(f.catalog),
		opts...,
	)
	return f
}

func (f *workerFixture) queueJob(t *testing.T, data string) domain.ImportJob {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), csvJob(data))
	if err != nil {
		t.Fatalf("queue job: %v", err)
	}
	return job
}

func TestTick_HappyPath(t *testing.T) {
	f := newWorkerFixture()

	existing := f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})
	f.prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: existing.ID, Price: 10})
	f.catalog.add(domain.CatalogEntry{Barcode: "200", Active: true})

	job := f.queueJob(t, "ean,price,stock\n100,12,5\n200,8,3\n")

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.State != domain.JobDone {
		t.Fatalf("job state = %q, want done", got.State)
	}

	hist, err := f.history.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("history missing: %v", err)
	}
	if hist.Status != domain.HistoryFinished {
		t.Errorf("history status = %q, want finished", hist.Status)
	}
	if hist.Counts.TotalRows != 2 || hist.Counts.Updated != 1 || hist.Counts.Created != 1 {
		t.Errorf("counts = %+v", hist.Counts)
	}
	if hist.Summary == "" {
		t.Error("summary is empty")
	}

	// The job's mapping is archived as the supplier template.
	if _, ok := f.templates.templates[testSupplier]; !ok {
		t.Error("mapping template was not archived")
	}
}

func TestTick_EmptyQueueIsNoop(t *testing.T) {
	f := newWorkerFixture()
	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}

// TestTick_MutualExclusion: while a job is processing, a tick does not
// pick up queued work.
func TestTick_MutualExclusion(t *testing.T) {
	f := newWorkerFixture()

	busy := f.queueJob(t, "ean,price\n1,2\n")
	f.jobs.SetState(context.Background(), busy.ID, domain.JobProcessing)
	f.history.Start(context.Background(), busy.ID, nil)

	queued := f.queueJob(t, "ean,price\n1,2\n")

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), queued.ID)
	if got.State != domain.JobQueued {
		t.Errorf("queued job state = %q, want queued while another is processing", got.State)
	}
}

// TestTick_FIFO: the oldest queued job is picked first.
func TestTick_FIFO(t *testing.T) {
	f := newWorkerFixture()
	f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})

	first := f.queueJob(t, "ean,price,stock\n100,1,1\n")
	second := f.queueJob(t, "ean,price,stock\n100,2,1\n")

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	gotFirst, _ := f.jobs.GetByID(context.Background(), first.ID)
	gotSecond, _ := f.jobs.GetByID(context.Background(), second.ID)
	if gotFirst.State != domain.JobDone {
		t.Errorf("first job state = %q, want done", gotFirst.State)
	}
	if gotSecond.State != domain.JobQueued {
		t.Errorf("second job state = %q, want still queued", gotSecond.State)
	}
}

// TestTick_StaleRecovery: a processing job with no checkpoint for
// longer than the threshold is force-failed, and the next queued job
// runs in the same tick.
func TestTick_StaleRecovery(t *testing.T) {
	f := newWorkerFixture(WithStaleAfter(time.Hour))
	f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})

	stuck := f.queueJob(t, "ean,price\n1,2\n")
	f.jobs.SetState(context.Background(), stuck.ID, domain.JobProcessing)
	f.history.Start(context.Background(), stuck.ID, nil)

	queued := f.queueJob(t, "ean,price,stock\n100,1,1\n")

	// Two hours pass with no checkpoint.
	f.now = f.now.Add(2 * time.Hour)

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	gotStuck, _ := f.jobs.GetByID(context.Background(), stuck.ID)
	if gotStuck.State != domain.JobFailed {
		t.Fatalf("stuck job state = %q, want failed", gotStuck.State)
	}
	hist, _ := f.history.Get(context.Background(), stuck.ID)
	if hist.Status != domain.HistoryFailed {
		t.Errorf("stuck history status = %q, want failed", hist.Status)
	}
	if !strings.Contains(hist.Summary, "timed out") {
		t.Errorf("stuck summary = %q, want timeout note", hist.Summary)
	}

	gotQueued, _ := f.jobs.GetByID(context.Background(), queued.ID)
	if gotQueued.State != domain.JobDone {
		t.Errorf("queued job state = %q, want done after recovery", gotQueued.State)
	}
}

// TestTick_RequeuedStuckJobRuns: requeueing a stuck processing job
// leaves its running history behind with an old checkpoint. The sweep
// must not fail the job again; the tick picks it up and runs it.
func TestTick_RequeuedStuckJobRuns(t *testing.T) {
	f := newWorkerFixture(WithStaleAfter(time.Hour))
	f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})

	job := f.queueJob(t, "ean,price,stock\n100,1,1\n")
	f.jobs.SetState(context.Background(), job.ID, domain.JobProcessing)
	f.history.Start(context.Background(), job.ID, nil)

	// The run died; two hours later an operator requeues the job.
	f.now = f.now.Add(2 * time.Hour)
	f.jobs.SetState(context.Background(), job.ID, domain.JobQueued)

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.State != domain.JobDone {
		t.Fatalf("requeued job state = %q, want done", got.State)
	}
	hist, _ := f.history.Get(context.Background(), job.ID)
	if hist.Status != domain.HistoryFinished {
		t.Errorf("history status = %q, want finished", hist.Status)
	}
	if strings.Contains(hist.Summary, "timed out") {
		t.Errorf("summary = %q, want no timeout note", hist.Summary)
	}
}

// TestTick_FreshProcessingNotSwept: a job checkpointed within the
// threshold is left alone.
func TestTick_FreshProcessingNotSwept(t *testing.T) {
	f := newWorkerFixture(WithStaleAfter(time.Hour))

	fresh := f.queueJob(t, "ean,price\n1,2\n")
	f.jobs.SetState(context.Background(), fresh.ID, domain.JobProcessing)
	f.history.Start(context.Background(), fresh.ID, nil)

	f.now = f.now.Add(30 * time.Minute)

	if err := f.worker.Tick(context.Background()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), fresh.ID)
	if got.State != domain.JobProcessing {
		t.Errorf("fresh job state = %q, want still processing", got.State)
	}
}

// TestExecute_ScanFailure: a pipeline failure lands the job in failed
// with the cause recorded, and Execute itself reports no error.
func TestExecute_ScanFailure(t *testing.T) {
	f := newWorkerFixture()

	job := f.queueJob(t, "irrelevant")
	job.Encoding = "ebcdic"
	f.jobs.jobs[job.ID] = job

	if err := f.worker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.State != domain.JobFailed {
		t.Fatalf("job state = %q, want failed", got.State)
	}
	hist, _ := f.history.Get(context.Background(), job.ID)
	if hist.Status != domain.HistoryFailed {
		t.Errorf("history status = %q, want failed", hist.Status)
	}
	if !strings.Contains(hist.Summary, "import failed") {
		t.Errorf("summary = %q, want failure cause", hist.Summary)
	}
}

// TestExecute_PanicBecomesFailure: a panic inside the pipeline fails
// the job instead of crashing the worker.
func TestExecute_PanicBecomesFailure(t *testing.T) {
	f := newWorkerFixture()
	// A nil scanner dereferences inside the pipeline.
	f.worker.pipe.scanner = nil

	job := f.queueJob(t, "ean,price\n1,2\n")

	if err := f.worker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.State != domain.JobFailed {
		t.Fatalf("job state = %q, want failed", got.State)
	}
	hist, _ := f.history.Get(context.Background(), job.ID)
	if !strings.Contains(hist.Summary, "panic during import") {
		t.Errorf("summary = %q, want panic note", hist.Summary)
	}
}

// TestExecute_HistoryStartFailure: a job that cannot record its first
// checkpoint fails before any row work.
func TestExecute_HistoryStartFailure(t *testing.T) {
	f := newWorkerFixture()
	f.history.failStart = errNotFound

	job := f.queueJob(t, "ean,price\n1,2\n")

	if err := f.worker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, _ := f.jobs.GetByID(context.Background(), job.ID)
	if got.State != domain.JobFailed {
		t.Errorf("job state = %q, want failed", got.State)
	}
}

// TestExecute_RecordsErrorRows: unmatched rows surface as import error
// records after the run.
func TestExecute_RecordsErrorRows(t *testing.T) {
	f := newWorkerFixture()
	f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})

	job := f.queueJob(t, "ean,price,stock\n100,5,1\n404,9,1\n")

	if err := f.worker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	records, _ := f.errors.ListByJob(context.Background(), job.ID)
	if len(records) != 1 {
		t.Fatalf("error records = %d, want 1", len(records))
	}
	if records[0].Kind != domain.ErrorUnmatched {
		t.Errorf("kind = %q, want unmatched", records[0].Kind)
	}
	if records[0].Barcode != "404" {
		t.Errorf("barcode = %q, want 404", records[0].Barcode)
	}
	if len(records[0].RawRow) == 0 {
		t.Error("raw row not preserved")
	}
}

// TestExecute_MergesTemplate: a second job's mapping merges into the
// existing supplier template instead of replacing it.
func TestExecute_MergesTemplate(t *testing.T) {
	f := newWorkerFixture()
	f.catalog.add(domain.CatalogEntry{Barcode: "100", Active: true})

	f.templates.Save(context.Background(), testSupplier, domain.ColumnMapping{
		{CSVColumn: "leveranciercode", TargetField: mapping.FieldSupplierCode},
	})

	job := f.queueJob(t, "ean,price,stock\n100,5,1\n")

	if err := f.worker.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	tpl, ok, _ := f.templates.Get(context.Background(), testSupplier)
	if !ok {
		t.Fatal("template missing")
	}
	targets := tpl.Targets()
	if !targets[mapping.FieldSupplierCode] {
		t.Error("merge dropped the previously stored column")
	}
	if !targets[mapping.FieldBarcode] || !targets[mapping.FieldPrice] {
		t.Error("merge did not add the job's columns")
	}
}

// TestRun_StopsOnCancel: the ticker loop exits when the context is
// cancelled.
func TestRun_StopsOnCancel(t *testing.T) {
	f := newWorkerFixture()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
