package domain

import (
	"time"

	"github.com/google/uuid"
)

// CatalogEntry is a sellable product record in the host catalog.
// The sync core only reads identification fields and toggles Active;
// it never deletes a catalog entry.
//
// Matching uses the natural key pair (Barcode, InternalCode). At least
// one of the two must be present for a row to be matchable.
type CatalogEntry struct {
	ID           uuid.UUID
	Barcode      string
	InternalCode string
	Name         string
	BrandID      int64
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasKey reports whether the entry carries at least one matching key.
func (e CatalogEntry) HasKey() bool {
	return e.Barcode != "" || e.InternalCode != ""
}

// SupplierPrice is the per-(supplier, catalog entry) association:
// price, stock and ordering terms as reported by one supplier.
//
// At most one association may exist per supplier per catalog entry.
// The store does not enforce this with a hard constraint, so writers
// must upsert in place on conflict instead of inserting blindly.
type SupplierPrice struct {
	ID             uuid.UUID
	SupplierID     int64
	CatalogEntryID uuid.UUID
	Price          float64
	PreviousPrice  float64
	PriceChangePct float64
	MinOrderQty    int
	LeadTimeDays   int
	StockQty       int
	SupplierCode   string
	SupplierLabel  string
	Discontinued   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
