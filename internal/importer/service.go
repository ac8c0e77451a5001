package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/csvfile"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/mapping"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// Submission validation errors. All are raised before a job row
// exists; a rejected submission leaves no trace.
var (
	ErrMissingSupplier = errors.New("supplier id is required")
	ErrFileTooLarge    = errors.New("file exceeds the size limit")
	ErrInvalidState    = errors.New("job is not in a state that allows this action")
)

// DefaultMaxFileSize caps uploaded pricelists at 50MB.
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// Service is the operator-facing surface of the import module: job
// submission, synchronous one-off imports, manual state actions, and
// mapping template management.
type Service struct {
	jobs      repository.JobStore
	history   repository.JobHistoryStore
	errors    repository.ImportErrorStore
	templates repository.MappingTemplateStore
	worker    *Worker

	maxFileSize int64
	log         *slog.Logger
}

// NewService wires the import service. The worker reference is the
// execution funnel for synchronous imports; queued imports reach the
// same funnel through the worker's own tick.
func NewService(
	jobs repository.JobStore,
	history repository.JobHistoryStore,
	errs repository.ImportErrorStore,
	templates repository.MappingTemplateStore,
	worker *Worker,
) *Service {
	return &Service{
		jobs:        jobs,
		history:     history,
		errors:      errs,
		templates:   templates,
		worker:      worker,
		maxFileSize: DefaultMaxFileSize,
		log:         slog.Default(),
	}
}

// SetMaxFileSize overrides the upload size cap.
func (s *Service) SetMaxFileSize(n int64) {
	if n > 0 {
		s.maxFileSize = n
	}
}

// SubmitRequest is one pricelist import submission.
type SubmitRequest struct {
	SupplierID int64
	FileName   string
	FileData   []byte
	Encoding   string
	Separator  string
	HasHeader  bool

	Mapping domain.ColumnMapping

	MinStockQty      int
	MinPrice         float64
	SkipDiscontinued bool
	BrandBlacklist   []int64
	EANWhitelist     []string
}

// Submit validates a request and enqueues it as a queued job. All
// validation happens here: an invalid submission never creates a job.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.ImportJob, error) {
	if err := s.validate(req); err != nil {
		return domain.ImportJob{}, err
	}

	job, err := s.jobs.Create(ctx, jobFromRequest(req))
	if err != nil {
		return domain.ImportJob{}, err
	}

	s.log.Info("import job queued",
		"job_id", job.ID,
		"supplier_id", job.SupplierID,
		"file", job.FileName,
		"bytes", len(job.FileData),
	)
	return job, nil
}

// ImportNow validates, persists and immediately executes a job,
// returning its final history. The run goes through the same worker
// funnel as queued imports, so every invariant of the pipeline holds.
func (s *Service) ImportNow(ctx context.Context, req SubmitRequest) (domain.JobHistory, error) {
	if err := s.validate(req); err != nil {
		return domain.JobHistory{}, err
	}

	job, err := s.jobs.Create(ctx, jobFromRequest(req))
	if err != nil {
		return domain.JobHistory{}, err
	}

	if err := s.worker.Execute(ctx, job); err != nil {
		return domain.JobHistory{}, err
	}
	return s.history.Get(ctx, job.ID)
}

func (s *Service) validate(req SubmitRequest) error {
	if req.SupplierID == 0 {
		return ErrMissingSupplier
	}
	if int64(len(req.FileData)) > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(req.FileData))
	}
	if _, err := csvfile.Decode(req.FileData, req.Encoding); err != nil {
		return err
	}
	if _, err := csvfile.SeparatorRune(req.Separator); err != nil {
		return err
	}
	return mapping.Validate(req.Mapping)
}

func jobFromRequest(req SubmitRequest) domain.ImportJob {
	return domain.ImportJob{
		SupplierID:       req.SupplierID,
		FileName:         req.FileName,
		FileData:         req.FileData,
		Encoding:         req.Encoding,
		Separator:        req.Separator,
		HasHeader:        req.HasHeader,
		Mapping:          req.Mapping,
		MinStockQty:      req.MinStockQty,
		MinPrice:         req.MinPrice,
		SkipDiscontinued: req.SkipDiscontinued,
		BrandBlacklist:   req.BrandBlacklist,
		EANWhitelist:     req.EANWhitelist,
	}
}

// Job returns one job with its history, if any exists yet.
func (s *Service) Job(ctx context.Context, id uuid.UUID) (domain.ImportJob, domain.JobHistory, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ImportJob{}, domain.JobHistory{}, err
	}

	history, err := s.history.Get(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrHistoryNotFound) {
		return domain.ImportJob{}, domain.JobHistory{}, err
	}
	return job, history, nil
}

// Jobs lists recent jobs, optionally scoped to one supplier.
func (s *Service) Jobs(ctx context.Context, supplierID int64, limit int) ([]domain.ImportJob, error) {
	return s.jobs.List(ctx, supplierID, limit)
}

// JobErrors lists the error records of one job.
func (s *Service) JobErrors(ctx context.Context, jobID uuid.UUID) ([]domain.ImportError, error) {
	return s.errors.ListByJob(ctx, jobID)
}

// Requeue resets a failed or processing job to queued. Requeueing a
// processing job does not interrupt a live run; it only resets the
// record (known limitation, there is no cooperative cancellation).
func (s *Service) Requeue(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.State != domain.JobFailed && job.State != domain.JobProcessing {
		return fmt.Errorf("%w: %s", ErrInvalidState, job.State)
	}

	s.log.Info("import job requeued", "job_id", id, "previous_state", job.State)
	return s.jobs.SetState(ctx, id, domain.JobQueued)
}

// ForceFail marks a job failed regardless of its current state.
func (s *Service) ForceFail(ctx context.Context, id uuid.UUID) error {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return err
	}
	s.log.Info("import job force-failed", "job_id", id)
	return s.jobs.SetState(ctx, id, domain.JobFailed)
}

// ForceComplete marks a job done regardless of its current state.
func (s *Service) ForceComplete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return err
	}
	s.log.Info("import job force-completed", "job_id", id)
	return s.jobs.SetState(ctx, id, domain.JobDone)
}

// ResolveError marks an import error handled. Bookkeeping only; the
// row is not re-imported.
func (s *Service) ResolveError(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	return s.errors.Resolve(ctx, id, resolvedBy)
}

// PurgeOldJobs deletes done/failed jobs finished longer than the
// retention ago. Housekeeping, not part of the execution state machine.
func (s *Service) PurgeOldJobs(ctx context.Context, retention time.Duration) (int64, error) {
	purged, err := s.jobs.PurgeFinished(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info("purged finished import jobs", "count", purged)
	}
	return purged, nil
}

// MappingTemplate returns the supplier's stored mapping template.
func (s *Service) MappingTemplate(ctx context.Context, supplierID int64) (domain.ColumnMapping, bool, error) {
	return s.templates.Get(ctx, supplierID)
}

// SaveMappingTemplate validates and stores a supplier mapping template.
func (s *Service) SaveMappingTemplate(ctx context.Context, supplierID int64, m domain.ColumnMapping) error {
	if supplierID == 0 {
		return ErrMissingSupplier
	}
	if err := mapping.Validate(m); err != nil {
		return err
	}
	return s.templates.Save(ctx, supplierID, m)
}

// PreviewMapping reads the file's header row and drafts a mapping via
// the synonym dictionary. Collaborator contract for the mapping editor.
func (s *Service) PreviewMapping(fileData []byte, encoding, separator string) (domain.ColumnMapping, error) {
	reader, err := csvfile.NewReader(fileData, encoding, separator)
	if err != nil {
		return nil, err
	}
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return mapping.AutoDetect(header), nil
}
