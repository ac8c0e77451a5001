package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// Reconciler executes the three mutation operations of an import, in
// fixed order: cleanup, bulk update, bulk create. Every caller that
// mutates supplier price associations funnels through these three
// operations so the uniqueness and cleanup invariants hold uniformly.
type Reconciler struct {
	prices repository.SupplierPriceStore
}

// NewReconciler creates a reconciler over the association store.
func NewReconciler(prices repository.SupplierPriceStore) *Reconciler {
	return &Reconciler{prices: prices}
}

// Cleanup deletes every association of the supplier whose catalog
// entry is absent from the current feed. keep must contain the entry
// ids of the update, create AND filtered sets: a filtered row is still
// carried by the supplier and must not be treated as discontinued.
func (r *Reconciler) Cleanup(ctx context.Context, supplierID int64, keep []uuid.UUID) (int64, error) {
	removed, err := r.prices.DeleteAbsent(ctx, supplierID, keep)
	if err != nil {
		return 0, fmt.Errorf("cleanup supplier %d: %w", supplierID, err)
	}
	return removed, nil
}

// BulkUpdate overwrites the existing associations with values from the
// feed. The previous price is preserved on each record and the change
// percentage computed before overwriting. Row failures are collected,
// not propagated: the operation is best effort across the set. Only a
// failure to load the supplier's current associations aborts.
func (r *Reconciler) BulkUpdate(ctx context.Context, supplierID int64, rows []MatchedRow) (int, []RowFailure, error) {
	existing, err := r.prices.MapBySupplier(ctx, supplierID)
	if err != nil {
		return 0, nil, fmt.Errorf("load associations for supplier %d: %w", supplierID, err)
	}

	var failures []RowFailure
	updated := 0

	for _, row := range rows {
		prev, ok := existing[row.Entry.ID]
		if !ok {
			// The association vanished between pre-scan and update
			// (out-of-band delete). Converge by creating it.
			if err := r.prices.Upsert(ctx, priceFromRow(supplierID, row, 0)); err != nil {
				failures = append(failures, RowFailure{Row: row.Row, Detail: err.Error()})
				continue
			}
			updated++
			continue
		}

		next := priceFromRow(supplierID, row, prev.Price)
		next.ID = prev.ID
		if err := r.prices.Update(ctx, next); err != nil {
			failures = append(failures, RowFailure{Row: row.Row, Detail: err.Error()})
			continue
		}
		updated++
	}
	return updated, failures, nil
}

// BulkCreate creates a new association for every row in the create
// set. Creation upserts in place if an association appeared since the
// pre-scan, preserving at-most-one per (supplier, catalog entry).
func (r *Reconciler) BulkCreate(ctx context.Context, supplierID int64, rows []MatchedRow) (int, []RowFailure) {
	var failures []RowFailure
	created := 0

	for _, row := range rows {
		if err := r.prices.Upsert(ctx, priceFromRow(supplierID, row, 0)); err != nil {
			failures = append(failures, RowFailure{Row: row.Row, Detail: err.Error()})
			continue
		}
		created++
	}
	return created, failures
}

// PriceChangePct computes the percentage change from old to new.
// A zero old price yields 0 rather than a division error.
func PriceChangePct(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	return (new - old) / old * 100
}

// priceFromRow builds the association record for a feed row.
func priceFromRow(supplierID int64, row MatchedRow, previousPrice float64) domain.SupplierPrice {
	return domain.SupplierPrice{
		SupplierID:     supplierID,
		CatalogEntryID: row.Entry.ID,
		Price:          row.Price,
		PreviousPrice:  previousPrice,
		PriceChangePct: PriceChangePct(previousPrice, row.Price),
		MinOrderQty:    row.MinOrderQty,
		LeadTimeDays:   row.LeadTimeDays,
		StockQty:       row.StockQty,
		SupplierCode:   row.SupplierCode,
		SupplierLabel:  row.SupplierLabel,
		Discontinued:   row.Discontinued,
	}
}
