package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/csvfile"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/mapping"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
)

// ErrNoMappedColumns means none of the mapping's CSV columns could be
// located in the file.
var ErrNoMappedColumns = errors.New("no mapped columns found in file")

// Scanner performs the pre-scan: one pass over the CSV that partitions
// rows into update/create/filtered/error sets using catalog lookups.
// It never mutates anything.
type Scanner struct {
	catalog repository.CatalogStore
	prices  repository.SupplierPriceStore
}

// NewScanner creates a pre-scanner over the given stores.
func NewScanner(catalog repository.CatalogStore, prices repository.SupplierPriceStore) *Scanner {
	return &Scanner{catalog: catalog, prices: prices}
}

// fieldBinding locates one mapped field inside a CSV record.
type fieldBinding struct {
	index int
	path  string
}

// Scan reads the job's CSV and classifies every row. The rows are
// parsed in a single pass; catalog and association lookups are batched
// afterwards so classification itself runs in memory.
func (s *Scanner) Scan(ctx context.Context, job domain.ImportJob) (*Partition, error) {
	reader, err := csvfile.NewReader(job.FileData, job.Encoding, job.Separator)
	if err != nil {
		return nil, err
	}

	bindings, err := resolveBindings(reader, job)
	if err != nil {
		return nil, err
	}

	var rows []Row
	line := 0
	if job.HasHeader {
		line = 1
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++
		if isBlank(record) {
			continue
		}
		rows = append(rows, parseRow(line, record, bindings))
	}

	barcodeHits, codeHits, err := s.lookupEntries(ctx, rows)
	if err != nil {
		return nil, err
	}

	existing, err := s.prices.MapBySupplier(ctx, job.SupplierID)
	if err != nil {
		return nil, err
	}

	return classify(job, rows, barcodeHits, codeHits, existing), nil
}

// resolveBindings locates every mapped column in the file. With a
// header row, CSV columns are matched by name; without one, the
// mapping's csv_column values are 1-based column positions.
func resolveBindings(reader *csv.Reader, job domain.ImportJob) ([]fieldBinding, error) {
	resolved := mapping.Resolved(job.Mapping)
	var bindings []fieldBinding

	if job.HasHeader {
		header, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		for i, name := range header {
			if path, ok := resolved[name]; ok {
				bindings = append(bindings, fieldBinding{index: i, path: path})
			}
		}
	} else {
		for col, path := range resolved {
			pos, err := strconv.Atoi(col)
			if err != nil || pos < 1 {
				continue
			}
			bindings = append(bindings, fieldBinding{index: pos - 1, path: path})
		}
	}

	if len(bindings) == 0 {
		return nil, ErrNoMappedColumns
	}
	return bindings, nil
}

// parseRow applies the bindings to one record, converting values per
// the field registry. Unparsable numerics fall back to zero.
func parseRow(line int, record []string, bindings []fieldBinding) Row {
	row := Row{Line: line, Raw: record}

	for _, b := range bindings {
		if b.index >= len(record) {
			continue
		}
		value := record[b.index]

		switch b.path {
		case mapping.FieldBarcode:
			row.Barcode = trim(value)
		case mapping.FieldInternalCode:
			row.InternalCode = trim(value)
		case mapping.FieldName:
			row.Name = trim(value)
		case mapping.FieldBrand:
			row.Brand = trim(value)
		case mapping.FieldPrice:
			row.Price = csvfile.ParseDecimal(value)
		case mapping.FieldStockQty:
			row.StockQty = csvfile.ParseInt(value)
		case mapping.FieldMinOrderQty:
			row.MinOrderQty = csvfile.ParseInt(value)
		case mapping.FieldLeadTimeDays:
			row.LeadTimeDays = csvfile.ParseInt(value)
		case mapping.FieldSupplierCode:
			row.SupplierCode = trim(value)
		case mapping.FieldSupplierLabel:
			row.SupplierLabel = trim(value)
		case mapping.FieldDiscontinued:
			row.Discontinued = csvfile.ParseFlag(value)
		}
	}
	return row
}

// lookupEntries batches the catalog lookups for all keys in the feed.
func (s *Scanner) lookupEntries(ctx context.Context, rows []Row) (map[string]domain.CatalogEntry, map[string]domain.CatalogEntry, error) {
	var barcodes, codes []string
	seenBarcode := make(map[string]bool)
	seenCode := make(map[string]bool)

	for _, r := range rows {
		if r.Barcode != "" && !seenBarcode[r.Barcode] {
			seenBarcode[r.Barcode] = true
			barcodes = append(barcodes, r.Barcode)
		}
		if r.InternalCode != "" && !seenCode[r.InternalCode] {
			seenCode[r.InternalCode] = true
			codes = append(codes, r.InternalCode)
		}
	}

	barcodeHits, err := s.catalog.FindByBarcodes(ctx, barcodes)
	if err != nil {
		return nil, nil, err
	}
	codeHits, err := s.catalog.FindByInternalCodes(ctx, codes)
	if err != nil {
		return nil, nil, err
	}
	return barcodeHits, codeHits, nil
}

// classify partitions parsed rows. Key resolution: the barcode hit
// wins over the internal-code hit; a row where the two resolve to
// different entries follows the barcode and is not an error.
//
// Filter predicates run in fixed order with short-circuit, so each
// filtered row carries exactly one skip reason.
func classify(
	job domain.ImportJob,
	rows []Row,
	barcodeHits map[string]domain.CatalogEntry,
	codeHits map[string]domain.CatalogEntry,
	existing map[uuid.UUID]domain.SupplierPrice,
) *Partition {
	part := &Partition{TotalRows: len(rows)}

	blacklist := make(map[int64]bool, len(job.BrandBlacklist))
	for _, id := range job.BrandBlacklist {
		blacklist[id] = true
	}
	whitelist := make(map[string]bool, len(job.EANWhitelist))
	for _, ean := range job.EANWhitelist {
		whitelist[ean] = true
	}

	for _, row := range rows {
		entry, ok := resolveEntry(row, barcodeHits, codeHits)
		if !ok {
			part.Errors = append(part.Errors, row)
			continue
		}
		matched := MatchedRow{Row: row, Entry: entry}

		if reason, skip := firstSkipReason(job, matched, blacklist, whitelist); skip {
			part.Filtered = append(part.Filtered, FilteredRow{MatchedRow: matched, Reason: reason})
			continue
		}

		if _, has := existing[entry.ID]; has {
			part.Updates = append(part.Updates, matched)
		} else {
			part.Creates = append(part.Creates, matched)
		}
	}
	return part
}

func resolveEntry(row Row, barcodeHits, codeHits map[string]domain.CatalogEntry) (domain.CatalogEntry, bool) {
	if row.Barcode != "" {
		if e, ok := barcodeHits[row.Barcode]; ok {
			return e, true
		}
	}
	if row.InternalCode != "" {
		if e, ok := codeHits[row.InternalCode]; ok {
			return e, true
		}
	}
	return domain.CatalogEntry{}, false
}

// firstSkipReason applies the filter predicates in fixed order:
// brand blacklist, EAN whitelist, discontinued, min stock, min price.
func firstSkipReason(job domain.ImportJob, row MatchedRow, blacklist map[int64]bool, whitelist map[string]bool) (domain.SkipReason, bool) {
	if len(blacklist) > 0 && blacklist[row.Entry.BrandID] {
		return domain.SkipBrandBlacklisted, true
	}
	if len(whitelist) > 0 && !whitelist[row.Barcode] {
		return domain.SkipNotInWhitelist, true
	}
	if job.SkipDiscontinued && row.Discontinued {
		return domain.SkipDiscontinued, true
	}
	if row.StockQty < job.MinStockQty {
		return domain.SkipOutOfStock, true
	}
	if row.Price < job.MinPrice {
		return domain.SkipLowPrice, true
	}
	return "", false
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func isBlank(record []string) bool {
	for _, v := range record {
		if trim(v) != "" {
			return false
		}
	}
	return true
}
