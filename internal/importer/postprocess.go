package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// PostProcessor reconciles catalog-wide activation state after an
// import. Both sweeps are idempotent.
type PostProcessor struct {
	catalog repository.CatalogStore
}

// NewPostProcessor creates a post-processor over the catalog store.
func NewPostProcessor(catalog repository.CatalogStore) *PostProcessor {
	return &PostProcessor{catalog: catalog}
}

// Run archives then reactivates, strictly in that order: an entry that
// is both newly supplied and previously orphaned must end the job
// active.
//
// Archive is global, not scoped to the current supplier, because a
// catalog entry may have lost its last supplier during cleanup.
// Reactivate only considers the entries touched by this job.
func (p *PostProcessor) Run(ctx context.Context, touched []uuid.UUID) (archived, reactivated int64, err error) {
	archived, err = p.catalog.ArchiveOrphans(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("archive sweep: %w", err)
	}

	reactivated, err = p.catalog.Reactivate(ctx, touched)
	if err != nil {
		return archived, 0, fmt.Errorf("reactivate sweep: %w", err)
	}
	return archived, reactivated, nil
}
