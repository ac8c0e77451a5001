package importer

import (
	"context"
	"fmt"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// Stage names recorded in job history checkpoints.
const (
	StagePreScan     = "pre_scan"
	StageCleanup     = "cleanup"
	StageBulkUpdate  = "bulk_update"
	StageBulkCreate  = "bulk_create"
	StagePostProcess = "post_process"
)

// pipeline runs the stages of one import in their fixed order:
// pre-scan, cleanup, bulk update, bulk create, post-process. Each
// stage reports a checkpoint on success; a stage-level failure aborts
// with the preceding stages' results already committed.
type pipeline struct {
	scanner    *Scanner
	reconciler *Reconciler
	post       *PostProcessor
}

// runResult aggregates one pipeline run.
type runResult struct {
	Counts    domain.JobCounts
	Partition *Partition
	Failures  []RowFailure
}

// checkpointFunc durably records stage progress. The queue worker
// persists checkpoints to job history; the synchronous import path
// passes a no-op.
type checkpointFunc func(stage string, counts domain.JobCounts) error

func (p *pipeline) run(ctx context.Context, job domain.ImportJob, checkpoint checkpointFunc) (runResult, error) {
	res := runResult{Counts: domain.JobCounts{SkipReasons: make(map[domain.SkipReason]int)}}

	part, err := p.scanner.Scan(ctx, job)
	if err != nil {
		return res, fmt.Errorf("pre-scan: %w", err)
	}
	res.Partition = part
	res.Counts.TotalRows = part.TotalRows
	res.Counts.Skipped = len(part.Filtered)
	res.Counts.SkipReasons = part.SkipReasons()
	res.Counts.Errors = len(part.Errors)
	if err := checkpoint(StagePreScan, res.Counts); err != nil {
		return res, err
	}

	removed, err := p.reconciler.Cleanup(ctx, job.SupplierID, part.KeepIDs())
	if err != nil {
		return res, err
	}
	res.Counts.Removed = removed
	if err := checkpoint(StageCleanup, res.Counts); err != nil {
		return res, err
	}

	if len(part.Updates) > 0 {
		updated, failures, err := p.reconciler.BulkUpdate(ctx, job.SupplierID, part.Updates)
		if err != nil {
			return res, err
		}
		res.Counts.Updated = updated
		res.Counts.Errors += len(failures)
		res.Failures = append(res.Failures, failures...)
		if err := checkpoint(StageBulkUpdate, res.Counts); err != nil {
			return res, err
		}
	}

	if len(part.Creates) > 0 {
		created, failures := p.reconciler.BulkCreate(ctx, job.SupplierID, part.Creates)
		res.Counts.Created = created
		res.Counts.Errors += len(failures)
		res.Failures = append(res.Failures, failures...)
		if err := checkpoint(StageBulkCreate, res.Counts); err != nil {
			return res, err
		}
	}

	archived, reactivated, err := p.post.Run(ctx, part.TouchedIDs())
	if err != nil {
		return res, err
	}
	res.Counts.Archived = archived
	res.Counts.Reactivated = reactivated
	if err := checkpoint(StagePostProcess, res.Counts); err != nil {
		return res, err
	}

	return res, nil
}

// errorRecords builds the import error rows of one run: unmatched rows
// from the pre-scan plus conversion failures from update/create.
func errorRecords(job domain.ImportJob, res runResult) []domain.ImportError {
	if res.Partition == nil {
		return nil
	}

	records := make([]domain.ImportError, 0, len(res.Partition.Errors)+len(res.Failures))
	for _, row := range res.Partition.Errors {
		records = append(records, domain.ImportError{
			JobID:        job.ID,
			SupplierID:   job.SupplierID,
			Barcode:      row.Barcode,
			InternalCode: row.InternalCode,
			ProductName:  row.Name,
			Brand:        row.Brand,
			RawRow:       row.Raw,
			Kind:         domain.ErrorUnmatched,
		})
	}
	for _, f := range res.Failures {
		records = append(records, domain.ImportError{
			JobID:        job.ID,
			SupplierID:   job.SupplierID,
			Barcode:      f.Row.Barcode,
			InternalCode: f.Row.InternalCode,
			ProductName:  f.Row.Name,
			Brand:        f.Row.Brand,
			RawRow:       f.Row.Raw,
			Kind:         domain.ErrorConversion,
		})
	}
	return records
}
