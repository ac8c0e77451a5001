package importer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

func matchedRow(entry domain.CatalogEntry, price float64, stock int) MatchedRow {
	return MatchedRow{
		Row:   Row{Barcode: entry.Barcode, Price: price, StockQty: stock},
		Entry: entry,
	}
}

// TestCleanup_RemovesAbsent covers the reference scenario: the
// supplier carries {A,B,C,D,E}, the feed contains {C,D,E,F}. Cleanup
// removes exactly {A,B}.
func TestCleanup_RemovesAbsent(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)

	var entries []domain.CatalogEntry
	for _, code := range []string{"A", "B", "C", "D", "E", "F"} {
		entries = append(entries, catalog.add(domain.CatalogEntry{Barcode: code, Active: true}))
	}
	// Associations for A..E; F is new in the feed.
	for _, e := range entries[:5] {
		prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: e.ID, Price: 10})
	}

	// Feed carries C, D, E, F.
	keep := []uuid.UUID{entries[2].ID, entries[3].ID, entries[4].ID, entries[5].ID}

	removed, err := NewReconciler(prices).Cleanup(context.Background(), testSupplier, keep)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	remaining, _ := prices.MapBySupplier(context.Background(), testSupplier)
	for i, e := range entries[:2] {
		if _, ok := remaining[e.ID]; ok {
			t.Errorf("entry %d should be removed", i)
		}
	}
	for _, e := range entries[2:5] {
		if _, ok := remaining[e.ID]; !ok {
			t.Errorf("entry %s should be kept", e.Barcode)
		}
	}
}

// TestCleanup_NilKeep: an import that matched nothing keeps nothing;
// a nil keep set removes every association of the supplier.
func TestCleanup_NilKeep(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)

	for _, code := range []string{"A", "B"} {
		entry := catalog.add(domain.CatalogEntry{Barcode: code, Active: true})
		prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: entry.ID})
	}

	removed, err := NewReconciler(prices).Cleanup(context.Background(), testSupplier, nil)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if remaining, _ := prices.MapBySupplier(context.Background(), testSupplier); len(remaining) != 0 {
		t.Errorf("remaining = %d associations, want 0", len(remaining))
	}
}

// TestCleanup_SparesOtherSuppliers: cleanup is scoped to one supplier.
func TestCleanup_SparesOtherSuppliers(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)
	entry := catalog.add(domain.CatalogEntry{Barcode: "X", Active: true})

	prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: entry.ID})
	prices.add(domain.SupplierPrice{SupplierID: testSupplier + 1, CatalogEntryID: entry.ID})

	removed, err := NewReconciler(prices).Cleanup(context.Background(), testSupplier, nil)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if !prices.hasAny(entry.ID) {
		t.Error("other supplier's association was removed")
	}
}

func TestBulkUpdate_PreservesPreviousPrice(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)
	entry := catalog.add(domain.CatalogEntry{Barcode: "123", Active: true})
	prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: entry.ID, Price: 100})

	updated, failures, err := NewReconciler(prices).BulkUpdate(context.Background(), testSupplier,
		[]MatchedRow{matchedRow(entry, 80, 5)})
	if err != nil {
		t.Fatalf("BulkUpdate() error = %v", err)
	}
	if updated != 1 || len(failures) != 0 {
		t.Fatalf("updated = %d, failures = %d", updated, len(failures))
	}

	after, _ := prices.MapBySupplier(context.Background(), testSupplier)
	got := after[entry.ID]
	if got.Price != 80 {
		t.Errorf("price = %v, want 80", got.Price)
	}
	if got.PreviousPrice != 100 {
		t.Errorf("previous price = %v, want 100", got.PreviousPrice)
	}
	if got.PriceChangePct != -20 {
		t.Errorf("change pct = %v, want -20", got.PriceChangePct)
	}
}

// TestBulkUpdate_VanishedAssociation: an association deleted between
// pre-scan and update is recreated rather than failed.
func TestBulkUpdate_VanishedAssociation(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)
	entry := catalog.add(domain.CatalogEntry{Barcode: "123", Active: true})

	updated, failures, err := NewReconciler(prices).BulkUpdate(context.Background(), testSupplier,
		[]MatchedRow{matchedRow(entry, 50, 5)})
	if err != nil {
		t.Fatalf("BulkUpdate() error = %v", err)
	}
	if updated != 1 || len(failures) != 0 {
		t.Fatalf("updated = %d, failures = %d", updated, len(failures))
	}

	after, _ := prices.MapBySupplier(context.Background(), testSupplier)
	if got := after[entry.ID]; got.Price != 50 || got.PreviousPrice != 0 {
		t.Errorf("recreated association = %+v", got)
	}
}

// TestBulkUpdate_BestEffort: one failing row does not abort the rest.
func TestBulkUpdate_BestEffort(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)

	bad := catalog.add(domain.CatalogEntry{Barcode: "bad", Active: true})
	good := catalog.add(domain.CatalogEntry{Barcode: "good", Active: true})
	prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: bad.ID, Price: 5})
	prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: good.ID, Price: 5})
	prices.failUpdate[bad.ID] = errors.New("constraint violation")

	updated, failures, err := NewReconciler(prices).BulkUpdate(context.Background(), testSupplier,
		[]MatchedRow{matchedRow(bad, 6, 1), matchedRow(good, 7, 1)})
	if err != nil {
		t.Fatalf("BulkUpdate() error = %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}
	if len(failures) != 1 || failures[0].Row.Barcode != "bad" {
		t.Fatalf("failures = %+v", failures)
	}
}

func TestBulkCreate(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)

	a := catalog.add(domain.CatalogEntry{Barcode: "A", Active: true})
	b := catalog.add(domain.CatalogEntry{Barcode: "B", Active: true})
	prices.failUpsert[b.ID] = errors.New("insert failed")

	created, failures := NewReconciler(prices).BulkCreate(context.Background(), testSupplier,
		[]MatchedRow{matchedRow(a, 9.5, 3), matchedRow(b, 2, 1)})
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if len(failures) != 1 || failures[0].Row.Barcode != "B" {
		t.Fatalf("failures = %+v", failures)
	}

	after, _ := prices.MapBySupplier(context.Background(), testSupplier)
	got, ok := after[a.ID]
	if !ok {
		t.Fatal("association for A missing")
	}
	if got.Price != 9.5 || got.StockQty != 3 || got.PreviousPrice != 0 || got.PriceChangePct != 0 {
		t.Errorf("created association = %+v", got)
	}
}

// TestBulkCreate_RacingCreateConverges: creating a row whose
// association appeared since the pre-scan updates in place instead of
// duplicating.
func TestBulkCreate_RacingCreateConverges(t *testing.T) {
	prices := newFakePrices()
	catalog := newFakeCatalog(prices)
	entry := catalog.add(domain.CatalogEntry{Barcode: "X", Active: true})
	prices.add(domain.SupplierPrice{SupplierID: testSupplier, CatalogEntryID: entry.ID, Price: 1})

	created, failures := NewReconciler(prices).BulkCreate(context.Background(), testSupplier,
		[]MatchedRow{matchedRow(entry, 2, 1)})
	if created != 1 || len(failures) != 0 {
		t.Fatalf("created = %d, failures = %d", created, len(failures))
	}

	after, _ := prices.MapBySupplier(context.Background(), testSupplier)
	if len(after) != 1 {
		t.Fatalf("associations = %d, want exactly 1 per (supplier, entry)", len(after))
	}
}

func TestPriceChangePct(t *testing.T) {
	tests := []struct {
		old, new, want float64
	}{
		{100, 80, -20},
		{0, 50, 0},
		{50, 75, 50},
		{10, 10, 0},
		{80, 100, 25},
	}

	for _, tt := range tests {
		if got := PriceChangePct(tt.old, tt.new); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PriceChangePct(%v, %v) = %v, want %v", tt.old, tt.new, got, tt.want)
		}
	}
}
