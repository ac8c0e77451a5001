package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository creates the Postgres-backed catalog store.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogStore {
	return &catalogRepository{pool: pool}
}

const catalogColumns = `id, barcode, internal_code, name, brand_id, active, created_at, updated_at`

func scanCatalogEntry(row pgx.CollectableRow) (domain.CatalogEntry, error) {
	var (
		e            domain.CatalogEntry
		barcode      *string
		internalCode *string
		brandID      *int64
	)
	err := row.Scan(&e.ID, &barcode, &internalCode, &e.Name, &brandID, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	if barcode != nil {
		e.Barcode = *barcode
	}
	if internalCode != nil {
		e.InternalCode = *internalCode
	}
	if brandID != nil {
		e.BrandID = *brandID
	}
	return e, nil
}

func (r *catalogRepository) FindByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.CatalogEntry, error) {
	result := make(map[string]domain.CatalogEntry, len(barcodes))
	if len(barcodes) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+catalogColumns+` FROM catalog_entries WHERE barcode = ANY($1)`,
		barcodes,
	)
	if err != nil {
		return nil, fmt.Errorf("find catalog entries by barcode: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanCatalogEntry)
	if err != nil {
		return nil, fmt.Errorf("scan catalog entries: %w", err)
	}

	for _, e := range entries {
		result[e.Barcode] = e
	}
	return result, nil
}

func (r *catalogRepository) FindByInternalCodes(ctx context.Context, codes []string) (map[string]domain.CatalogEntry, error) {
	result := make(map[string]domain.CatalogEntry, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+catalogColumns+` FROM catalog_entries WHERE internal_code = ANY($1)`,
		codes,
	)
	if err != nil {
		return nil, fmt.Errorf("find catalog entries by internal code: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanCatalogEntry)
	if err != nil {
		return nil, fmt.Errorf("scan catalog entries: %w", err)
	}

	for _, e := range entries {
		result[e.InternalCode] = e
	}
	return result, nil
}

func (r *catalogRepository) ArchiveOrphans(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE catalog_entries c
		SET active = false, updated_at = now()
		WHERE c.active
		  AND NOT EXISTS (
			SELECT 1 FROM supplier_prices sp WHERE sp.catalog_entry_id = c.id
		  )`)
	if err != nil {
		return 0, fmt.Errorf("archive orphaned catalog entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *catalogRepository) Reactivate(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE catalog_entries
		SET active = true, updated_at = now()
		WHERE id = ANY($1) AND NOT active`,
		ids,
	)
	if err != nil {
		return 0, fmt.Errorf("reactivate catalog entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
