// Package mapping resolves supplier CSV column headers onto the field
// paths the import pipeline knows how to populate.
//
// The set of valid targets is an explicit, build-time registry rather
// than anything derived from a live schema at runtime. This keeps the
// mapper's valid-target set testable in isolation and versioned with
// the code.
package mapping

// Target object namespaces for field paths.
const (
	TargetCatalog = "catalog"
	TargetPrice   = "price"
)

// Well-known field paths.
const (
	FieldBarcode       = "catalog.barcode"
	FieldInternalCode  = "catalog.internal_code"
	FieldName          = "catalog.name"
	FieldBrand         = "catalog.brand"
	FieldPrice         = "price.price"
	FieldStockQty      = "price.stock_qty"
	FieldMinOrderQty   = "price.min_order_qty"
	FieldLeadTimeDays  = "price.lead_time_days"
	FieldSupplierCode  = "price.supplier_code"
	FieldSupplierLabel = "price.supplier_label"
	FieldDiscontinued  = "price.discontinued"
)

// FieldKind describes how a field's raw CSV value is parsed.
type FieldKind string

const (
	KindText    FieldKind = "text"
	KindDecimal FieldKind = "decimal"
	KindInteger FieldKind = "integer"
	KindFlag    FieldKind = "flag"
)

// Field describes one importable target field.
type Field struct {
	Path   string
	Target string
	Label  string
	Kind   FieldKind
}

// fields is the registry of every importable field, in display order.
var fields = []Field{
	{Path: FieldBarcode, Target: TargetCatalog, Label: "Barcode / EAN", Kind: KindText},
	{Path: FieldInternalCode, Target: TargetCatalog, Label: "Internal code / SKU", Kind: KindText},
	{Path: FieldName, Target: TargetCatalog, Label: "Product name", Kind: KindText},
	{Path: FieldBrand, Target: TargetCatalog, Label: "Brand", Kind: KindText},
	{Path: FieldPrice, Target: TargetPrice, Label: "Purchase price", Kind: KindDecimal},
	{Path: FieldStockQty, Target: TargetPrice, Label: "Supplier stock", Kind: KindInteger},
	{Path: FieldMinOrderQty, Target: TargetPrice, Label: "Minimum order qty", Kind: KindInteger},
	{Path: FieldLeadTimeDays, Target: TargetPrice, Label: "Lead time (days)", Kind: KindInteger},
	{Path: FieldSupplierCode, Target: TargetPrice, Label: "Supplier product code", Kind: KindText},
	{Path: FieldSupplierLabel, Target: TargetPrice, Label: "Supplier product name", Kind: KindText},
	{Path: FieldDiscontinued, Target: TargetPrice, Label: "Discontinued flag", Kind: KindFlag},
}

var fieldIndex = buildFieldIndex()

func buildFieldIndex() map[string]Field {
	idx := make(map[string]Field, len(fields))
	for _, f := range fields {
		idx[f.Path] = f
	}
	return idx
}

// Fields returns all importable fields in display order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// FieldByPath returns the registry entry for a field path.
func FieldByPath(path string) (Field, bool) {
	f, ok := fieldIndex[path]
	return f, ok
}

// KnownPath reports whether path names a registered importable field.
func KnownPath(path string) bool {
	_, ok := fieldIndex[path]
	return ok
}
