// Package repository provides the Postgres-backed stores for the
// pricelist sync core. Interfaces are defined here so the import
// pipeline can be exercised against in-memory fakes in tests.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// CatalogStore reads and flags catalog entries. The sync core never
// deletes catalog rows; archiving is flipping Active off.
type CatalogStore interface {
	// FindByBarcodes returns existing entries keyed by barcode.
	FindByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.CatalogEntry, error)

	// FindByInternalCodes returns existing entries keyed by internal code.
	FindByInternalCodes(ctx context.Context, codes []string) (map[string]domain.CatalogEntry, error)

	// ArchiveOrphans deactivates every active entry with zero supplier
	// price associations, catalog-wide. Returns the number archived.
	ArchiveOrphans(ctx context.Context) (int64, error)

	// Reactivate re-activates the given entries where currently
	// inactive. Returns the number reactivated.
	Reactivate(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// SupplierPriceStore owns the per-(supplier, catalog entry) price
// associations.
type SupplierPriceStore interface {
	// MapBySupplier returns all associations of one supplier keyed by
	// catalog entry id.
	MapBySupplier(ctx context.Context, supplierID int64) (map[uuid.UUID]domain.SupplierPrice, error)

	// DeleteAbsent removes the supplier's associations whose catalog
	// entry is not in keep. A nil or empty keep removes all of them.
	// Returns the number removed.
	DeleteAbsent(ctx context.Context, supplierID int64, keep []uuid.UUID) (int64, error)

	// Update overwrites an existing association in place.
	Update(ctx context.Context, price domain.SupplierPrice) error

	// Upsert creates the association, or updates it in place if one
	// already exists for (supplier, catalog entry). The store carries
	// no hard uniqueness constraint, so racing creates must converge
	// here instead of erroring.
	Upsert(ctx context.Context, price domain.SupplierPrice) error
}

// JobStore owns the import job queue.
type JobStore interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	List(ctx context.Context, supplierID int64, limit int) ([]domain.ImportJob, error)

	// NextQueued returns the oldest queued job by creation time, or
	// domain.ImportJob{} with ok=false when the queue is empty.
	NextQueued(ctx context.Context) (domain.ImportJob, bool, error)

	// ListProcessing returns all jobs currently in the processing state.
	ListProcessing(ctx context.Context) ([]domain.ImportJob, error)

	// SetState transitions a job and stamps started/finished times as
	// appropriate for the target state.
	SetState(ctx context.Context, id uuid.UUID, state domain.JobState) error

	// PurgeFinished deletes done/failed jobs finished before the cutoff.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobHistoryStore owns the companion progress records. A history row is
// written far more often than its job row; CheckpointAt is the signal
// stuck-job detection reads.
type JobHistoryStore interface {
	// Start creates (or resets) the history record for a picked job and
	// stamps the first checkpoint.
	Start(ctx context.Context, jobID uuid.UUID, snapshot domain.ColumnMapping) error

	// Checkpoint records stage progress and advances CheckpointAt.
	Checkpoint(ctx context.Context, jobID uuid.UUID, stage string, counts domain.JobCounts) error

	// Finish writes the terminal status, summary and duration.
	Finish(ctx context.Context, jobID uuid.UUID, status domain.HistoryStatus, counts domain.JobCounts, summary string, duration time.Duration) error

	Get(ctx context.Context, jobID uuid.UUID) (domain.JobHistory, error)

	// StaleRunning returns ids of jobs whose history is still running
	// but has not checkpointed since the cutoff.
	StaleRunning(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// ImportErrorStore owns the per-row error records of finished jobs.
type ImportErrorStore interface {
	// CreateBatch inserts all error records of one job in bulk.
	CreateBatch(ctx context.Context, errs []domain.ImportError) error

	ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.ImportError, error)

	// Resolve marks an error record handled. Pure bookkeeping; the row
	// is not retried.
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error
}

// MappingTemplateStore owns the per-supplier reusable column mappings.
type MappingTemplateStore interface {
	Get(ctx context.Context, supplierID int64) (domain.ColumnMapping, bool, error)
	Save(ctx context.Context, supplierID int64, m domain.ColumnMapping) error
}
