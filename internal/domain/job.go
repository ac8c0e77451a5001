package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of an import job.
// Transitions happen only through the queue worker (or explicit
// operator actions): queued -> processing -> done | failed.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
)

// HistoryStatus is the fine-grained status of a job's companion
// history record.
type HistoryStatus string

const (
	HistoryPending  HistoryStatus = "pending"
	HistoryRunning  HistoryStatus = "running"
	HistoryFinished HistoryStatus = "finished"
	HistoryFailed   HistoryStatus = "failed"
)

// ImportJob is one pricelist import execution unit. The raw file bytes
// and the column mapping are archived on the job itself so a run can be
// audited or replayed exactly as submitted.
type ImportJob struct {
	ID         uuid.UUID
	SupplierID int64
	State      JobState

	FileName  string
	FileData  []byte
	Encoding  string
	Separator string
	HasHeader bool

	Mapping ColumnMapping

	// Filter thresholds applied during the pre-scan.
	MinStockQty      int
	MinPrice         float64
	SkipDiscontinued bool
	BrandBlacklist   []int64
	EANWhitelist     []string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobCounts aggregates the outcome of one import run.
type JobCounts struct {
	TotalRows   int
	Created     int
	Updated     int
	Skipped     int
	SkipReasons map[SkipReason]int
	Errors      int
	Removed     int64
	Archived    int64
	Reactivated int64
}

// JobHistory is the companion progress record of an import job. It is
// updated far more often than the job row itself (every stage commits a
// checkpoint), so "no progress" can be measured without conflating it
// with "not yet picked up". CheckpointAt drives stuck-job detection.
type JobHistory struct {
	JobID           uuid.UUID
	Status          HistoryStatus
	Stage           string
	CheckpointAt    time.Time
	Counts          JobCounts
	Summary         string
	MappingSnapshot ColumnMapping
	Duration        time.Duration
}

// SkipReason tags a row that resolved to a catalog entry but was
// excluded by a policy threshold. Filtered rows are not errors.
type SkipReason string

const (
	SkipOutOfStock       SkipReason = "out_of_stock"
	SkipLowPrice         SkipReason = "low_price"
	SkipDiscontinued     SkipReason = "discontinued"
	SkipBrandBlacklisted SkipReason = "brand_blacklisted"
	SkipNotInWhitelist   SkipReason = "not_in_whitelist"
)

// ErrorKind classifies a failed CSV row.
type ErrorKind string

const (
	ErrorUnmatched  ErrorKind = "unmatched"
	ErrorConversion ErrorKind = "conversion"
)

// ImportError is one unmatched or failed CSV row, kept for manual
// resolution. The raw row payload is preserved so an operator can
// create the missing catalog entry by hand later.
type ImportError struct {
	ID         uuid.UUID
	JobID      uuid.UUID
	SupplierID int64

	// Identification the scanner attempted to match with.
	Barcode      string
	InternalCode string
	ProductName  string
	Brand        string

	RawRow []string
	Kind   ErrorKind

	Resolved   bool
	ResolvedBy string
	ResolvedAt time.Time
	CreatedAt  time.Time
}
