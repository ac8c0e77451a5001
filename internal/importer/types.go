// Package importer implements the bulk CSV reconciliation pipeline:
// pre-scan, classification, bulk update/create, cleanup of stale
// supplier prices, catalog archive/reactivate, and the background
// queue worker that drives it all.
package importer

import (
	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// Row is one parsed CSV line with its mapped field values. Numeric
// fields that failed to parse hold zero; the raw record is kept for
// error reporting and manual resolution.
type Row struct {
	Line int
	Raw  []string

	Barcode      string
	InternalCode string
	Name         string
	Brand        string

	Price         float64
	StockQty      int
	MinOrderQty   int
	LeadTimeDays  int
	SupplierCode  string
	SupplierLabel string
	Discontinued  bool
}

// MatchedRow is a row that resolved to an existing catalog entry.
type MatchedRow struct {
	Row
	Entry domain.CatalogEntry
}

// FilteredRow is a matched row excluded by a threshold rule.
type FilteredRow struct {
	MatchedRow
	Reason domain.SkipReason
}

// RowFailure records a row that failed during bulk update or create.
// Failures feed the job's error accounting; they never abort the batch.
type RowFailure struct {
	Row    Row
	Detail string
}

// Partition is the four-way classification of a pre-scanned CSV.
// Every input row lands in exactly one of the four sets.
type Partition struct {
	TotalRows int

	// Updates: rows whose catalog entry already has an association for
	// this supplier.
	Updates []MatchedRow

	// Creates: rows whose catalog entry exists but has no association
	// for this supplier yet.
	Creates []MatchedRow

	// Filtered: matched rows excluded by a threshold rule.
	Filtered []FilteredRow

	// Errors: rows whose keys resolve to no catalog entry.
	Errors []Row
}

// KeepIDs returns the catalog entry ids present anywhere in the feed:
// updates, creates and filtered rows. Cleanup must spare all of them;
// a filtered row is still carried by the supplier, just below policy.
func (p *Partition) KeepIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(p.Updates)+len(p.Creates)+len(p.Filtered))
	ids := make([]uuid.UUID, 0, len(seen))

	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, r := range p.Updates {
		add(r.Entry.ID)
	}
	for _, r := range p.Creates {
		add(r.Entry.ID)
	}
	for _, r := range p.Filtered {
		add(r.Entry.ID)
	}
	return ids
}

// TouchedIDs returns the catalog entry ids written by this job
// (updates and creates); these are the reactivation candidates.
func (p *Partition) TouchedIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(p.Updates)+len(p.Creates))
	ids := make([]uuid.UUID, 0, len(seen))

	for _, r := range p.Updates {
		if !seen[r.Entry.ID] {
			seen[r.Entry.ID] = true
			ids = append(ids, r.Entry.ID)
		}
	}
	for _, r := range p.Creates {
		if !seen[r.Entry.ID] {
			seen[r.Entry.ID] = true
			ids = append(ids, r.Entry.ID)
		}
	}
	return ids
}

// SkipReasons tallies filtered rows per reason.
func (p *Partition) SkipReasons() map[domain.SkipReason]int {
	reasons := make(map[domain.SkipReason]int)
	for _, r := range p.Filtered {
		reasons[r.Reason]++
	}
	return reasons
}
