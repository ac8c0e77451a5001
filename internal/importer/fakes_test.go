package importer

// fakes_test.go holds in-memory store implementations used across the
// importer tests. They mirror the Postgres repositories' semantics
// closely enough to exercise every pipeline invariant without a
// database.

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

var errNotFound = errors.New("not found")

type fakeCatalog struct {
	entries map[uuid.UUID]domain.CatalogEntry

	archiveCalls    int
	reactivateCalls int

	// associations is shared with the price fake so ArchiveOrphans can
	// see which entries still have suppliers.
	associations *fakePrices

	failArchive error
}

func newFakeCatalog(prices *fakePrices) *fakeCatalog {
	return &fakeCatalog{
		entries:      make(map[uuid.UUID]domain.CatalogEntry),
		associations: prices,
	}
}

func (f *fakeCatalog) add(entry domain.CatalogEntry) domain.CatalogEntry {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	f.entries[entry.ID] = entry
	return entry
}

func (f *fakeCatalog) FindByBarcodes(_ context.Context, barcodes []string) (map[string]domain.CatalogEntry, error) {
	out := make(map[string]domain.CatalogEntry)
	for _, b := range barcodes {
		for _, e := range f.entries {
			if e.Barcode == b {
				out[b] = e
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) FindByInternalCodes(_ context.Context, codes []string) (map[string]domain.CatalogEntry, error) {
	out := make(map[string]domain.CatalogEntry)
	for _, c := range codes {
		for _, e := range f.entries {
			if e.InternalCode == c {
				out[c] = e
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) ArchiveOrphans(_ context.Context) (int64, error) {
	if f.failArchive != nil {
		return 0, f.failArchive
	}
	f.archiveCalls++
	var n int64
	for id, e := range f.entries {
		if e.Active && !f.associations.hasAny(id) {
			e.Active = false
			f.entries[id] = e
			n++
		}
	}
	return n, nil
}

func (f *fakeCatalog) Reactivate(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.reactivateCalls++
	var n int64
	for _, id := range ids {
		if e, ok := f.entries[id]; ok && !e.Active {
			e.Active = true
			f.entries[id] = e
			n++
		}
	}
	return n, nil
}

type priceKey struct {
	supplierID int64
	entryID    uuid.UUID
}

type fakePrices struct {
	prices map[priceKey]domain.SupplierPrice

	failUpdate map[uuid.UUID]error
	failUpsert map[uuid.UUID]error
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices:     make(map[priceKey]domain.SupplierPrice),
		failUpdate: make(map[uuid.UUID]error),
		failUpsert: make(map[uuid.UUID]error),
	}
}

func (f *fakePrices) add(p domain.SupplierPrice) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.prices[priceKey{p.SupplierID, p.CatalogEntryID}] = p
}

func (f *fakePrices) hasAny(entryID uuid.UUID) bool {
	for k := range f.prices {
		if k.entryID == entryID {
			return true
		}
	}
	return false
}

func (f *fakePrices) MapBySupplier(_ context.Context, supplierID int64) (map[uuid.UUID]domain.SupplierPrice, error) {
	out := make(map[uuid.UUID]domain.SupplierPrice)
	for k, p := range f.prices {
		if k.supplierID == supplierID {
			out[k.entryID] = p
		}
	}
	return out, nil
}

func (f *fakePrices) DeleteAbsent(_ context.Context, supplierID int64, keep []uuid.UUID) (int64, error) {
	keepSet := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	var n int64
	for k := range f.prices {
		if k.supplierID == supplierID && !keepSet[k.entryID] {
			delete(f.prices, k)
			n++
		}
	}
	return n, nil
}

func (f *fakePrices) Update(_ context.Context, price domain.SupplierPrice) error {
	if err := f.failUpdate[price.CatalogEntryID]; err != nil {
		return err
	}
	f.prices[priceKey{price.SupplierID, price.CatalogEntryID}] = price
	return nil
}

func (f *fakePrices) Upsert(_ context.Context, price domain.SupplierPrice) error {
	if err := f.failUpsert[price.CatalogEntryID]; err != nil {
		return err
	}
	key := priceKey{price.SupplierID, price.CatalogEntryID}
	if existing, ok := f.prices[key]; ok {
		price.ID = existing.ID
	} else if price.ID == uuid.Nil {
		price.ID = uuid.New()
	}
	f.prices[key] = price
	return nil
}

type fakeJobs struct {
	jobs map[uuid.UUID]domain.ImportJob
	seq  int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[uuid.UUID]domain.ImportJob)}
}

func (f *fakeJobs) Create(_ context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	job.ID = uuid.New()
	job.State = domain.JobQueued
	f.seq++
	job.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, f.seq, time.UTC)
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobs) GetByID(_ context.Context, id uuid.UUID) (domain.ImportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return domain.ImportJob{}, errNotFound
	}
	return job, nil
}

func (f *fakeJobs) List(_ context.Context, supplierID int64, limit int) ([]domain.ImportJob, error) {
	var out []domain.ImportJob
	for _, j := range f.jobs {
		if supplierID == 0 || j.SupplierID == supplierID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeJobs) NextQueued(_ context.Context) (domain.ImportJob, bool, error) {
	var oldest domain.ImportJob
	found := false
	for _, j := range f.jobs {
		if j.State != domain.JobQueued {
			continue
		}
		if !found || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
			found = true
		}
	}
	return oldest, found, nil
}

func (f *fakeJobs) ListProcessing(_ context.Context) ([]domain.ImportJob, error) {
	var out []domain.ImportJob
	for _, j := range f.jobs {
		if j.State == domain.JobProcessing {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) SetState(_ context.Context, id uuid.UUID, state domain.JobState) error {
	job, ok := f.jobs[id]
	if !ok {
		return errNotFound
	}
	job.State = state
	f.jobs[id] = job
	return nil
}

func (f *fakeJobs) PurgeFinished(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, j := range f.jobs {
		if (j.State == domain.JobDone || j.State == domain.JobFailed) && j.FinishedAt.Before(cutoff) {
			delete(f.jobs, id)
			n++
		}
	}
	return n, nil
}

type fakeHistory struct {
	records map[uuid.UUID]domain.JobHistory
	now     func() time.Time

	failStart      error
	failCheckpoint error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		records: make(map[uuid.UUID]domain.JobHistory),
		now:     time.Now,
	}
}

func (f *fakeHistory) Start(_ context.Context, jobID uuid.UUID, snapshot domain.ColumnMapping) error {
	if f.failStart != nil {
		return f.failStart
	}
	f.records[jobID] = domain.JobHistory{
		JobID:           jobID,
		Status:          domain.HistoryRunning,
		Stage:           "picked",
		CheckpointAt:    f.now(),
		MappingSnapshot: snapshot,
	}
	return nil
}

func (f *fakeHistory) Checkpoint(_ context.Context, jobID uuid.UUID, stage string, counts domain.JobCounts) error {
	if f.failCheckpoint != nil {
		return f.failCheckpoint
	}
	rec, ok := f.records[jobID]
	if !ok {
		return errNotFound
	}
	rec.Stage = stage
	rec.Counts = counts
	rec.CheckpointAt = f.now()
	f.records[jobID] = rec
	return nil
}

func (f *fakeHistory) Finish(_ context.Context, jobID uuid.UUID, status domain.HistoryStatus, counts domain.JobCounts, summary string, duration time.Duration) error {
	rec := f.records[jobID]
	rec.JobID = jobID
	rec.Status = status
	rec.Counts = counts
	rec.Summary = summary
	rec.Duration = duration
	rec.CheckpointAt = f.now()
	f.records[jobID] = rec
	return nil
}

func (f *fakeHistory) Get(_ context.Context, jobID uuid.UUID) (domain.JobHistory, error) {
	rec, ok := f.records[jobID]
	if !ok {
		return domain.JobHistory{}, errNotFound
	}
	return rec, nil
}

func (f *fakeHistory) StaleRunning(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, rec := range f.records {
		if rec.Status == domain.HistoryRunning && rec.CheckpointAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeErrors struct {
	records []domain.ImportError
}

func newFakeErrors() *fakeErrors {
	return &fakeErrors{}
}

func (f *fakeErrors) CreateBatch(_ context.Context, errs []domain.ImportError) error {
	for _, e := range errs {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		f.records = append(f.records, e)
	}
	return nil
}

func (f *fakeErrors) ListByJob(_ context.Context, jobID uuid.UUID) ([]domain.ImportError, error) {
	var out []domain.ImportError
	for _, e := range f.records {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeErrors) Resolve(_ context.Context, id uuid.UUID, resolvedBy string) error {
	for i, e := range f.records {
		if e.ID == id {
			f.records[i].Resolved = true
			f.records[i].ResolvedBy = resolvedBy
			f.records[i].ResolvedAt = time.Now()
			return nil
		}
	}
	return errNotFound
}

type fakeTemplates struct {
	templates map[int64]domain.ColumnMapping
}

func newFakeTemplates() *fakeTemplates {
	return &fakeTemplates{templates: make(map[int64]domain.ColumnMapping)}
}

func (f *fakeTemplates) Get(_ context.Context, supplierID int64) (domain.ColumnMapping, bool, error) {
	m, ok := f.templates[supplierID]
	return m, ok, nil
}

func (f *fakeTemplates) Save(_ context.Context, supplierID int64, m domain.ColumnMapping) error {
	f.templates[supplierID] = m
	return nil
}
