package mapping

import (
	"errors"
	"strings"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// Validation errors raised at the job-submission boundary.
var (
	// ErrMissingKey means the mapping resolves neither a barcode nor an
	// internal code, so no row could ever match a catalog entry.
	ErrMissingKey = errors.New("mapping does not bind a barcode or internal code column")

	// ErrMissingPrice means the mapping does not bind the price field.
	ErrMissingPrice = errors.New("mapping does not bind a price column")

	// ErrUnknownTarget means a mapping names a target field outside the
	// registry.
	ErrUnknownTarget = errors.New("mapping binds an unknown target field")
)

// synonyms maps normalized CSV header names to target field paths.
// Matching is case-insensitive and ignores surrounding punctuation;
// see normalizeHeader.
var synonyms = map[string]string{
	"barcode": FieldBarcode,
	"ean":     FieldBarcode,
	"ean13":   FieldBarcode,
	"gtin":    FieldBarcode,
	"upc":     FieldBarcode,

	"sku":           FieldInternalCode,
	"code":          FieldInternalCode,
	"internal code": FieldInternalCode,
	"item code":     FieldInternalCode,
	"artikelnummer": FieldInternalCode,
	"reference":     FieldInternalCode,
	"ref":           FieldInternalCode,

	"name":         FieldName,
	"product":      FieldName,
	"product name": FieldName,
	"description":  FieldName,
	"title":        FieldName,

	"brand":        FieldBrand,
	"manufacturer": FieldBrand,
	"merk":         FieldBrand,

	"price":          FieldPrice,
	"unit price":     FieldPrice,
	"purchase price": FieldPrice,
	"cost":           FieldPrice,
	"net price":      FieldPrice,
	"prijs":          FieldPrice,

	"stock":       FieldStockQty,
	"qty":         FieldStockQty,
	"quantity":    FieldStockQty,
	"available":   FieldStockQty,
	"stock qty":   FieldStockQty,
	"stock level": FieldStockQty,
	"voorraad":    FieldStockQty,

	"moq":           FieldMinOrderQty,
	"min order":     FieldMinOrderQty,
	"min order qty": FieldMinOrderQty,
	"minimum order": FieldMinOrderQty,

	"lead time":      FieldLeadTimeDays,
	"lead time days": FieldLeadTimeDays,
	"delivery time":  FieldLeadTimeDays,
	"delivery days":  FieldLeadTimeDays,

	"supplier code": FieldSupplierCode,
	"article":       FieldSupplierCode,
	"article code":  FieldSupplierCode,
	"item":          FieldSupplierCode,
	"item number":   FieldSupplierCode,

	"supplier name":    FieldSupplierLabel,
	"supplier product": FieldSupplierLabel,

	"discontinued": FieldDiscontinued,
	"eol":          FieldDiscontinued,
	"end of life":  FieldDiscontinued,
	"obsolete":     FieldDiscontinued,
}

// Resolve maps a CSV column header to a target field path. The second
// return is false for headers the dictionary does not know; unmapped
// columns are dropped from reconciliation, never an error.
func Resolve(header string) (string, bool) {
	path, ok := synonyms[normalizeHeader(header)]
	return path, ok
}

// normalizeHeader lowercases the header and collapses separators so
// "Lead-Time_Days " and "lead time days" match the same entry.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	b.Grow(len(h))
	lastSpace := false
	for _, r := range h {
		switch r {
		case '-', '_', '.', '/', ':':
			r = ' '
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// AutoDetect builds a draft mapping for a header row using the synonym
// dictionary. Columns the dictionary does not know get an empty target
// so the caller can present them for manual binding.
func AutoDetect(headers []string) domain.ColumnMapping {
	m := make(domain.ColumnMapping, 0, len(headers))
	for _, h := range headers {
		target, _ := Resolve(h)
		m = append(m, domain.MappingColumn{CSVColumn: h, TargetField: target})
	}
	return m
}

// Validate checks a mapping at the job-submission boundary. A usable
// mapping must bind at least one catalog matching key (barcode or
// internal code) and the price field, and must not name targets
// outside the registry.
func Validate(m domain.ColumnMapping) error {
	targets := m.Targets()

	for path := range targets {
		if !KnownPath(path) {
			return ErrUnknownTarget
		}
	}
	if !targets[FieldBarcode] && !targets[FieldInternalCode] {
		return ErrMissingKey
	}
	if !targets[FieldPrice] {
		return ErrMissingPrice
	}
	return nil
}

// Resolved returns the csv-column -> field-path bindings of a mapping,
// dropping ignored columns and unknown targets.
func Resolved(m domain.ColumnMapping) map[string]string {
	out := make(map[string]string, len(m))
	for _, col := range m {
		if col.TargetField == "" || !KnownPath(col.TargetField) {
			continue
		}
		out[col.CSVColumn] = col.TargetField
	}
	return out
}
