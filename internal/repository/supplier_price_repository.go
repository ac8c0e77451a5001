package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

type supplierPriceRepository struct {
	pool *pgxpool.Pool
}

// NewSupplierPriceRepository creates the Postgres-backed association store.
func NewSupplierPriceRepository(pool *pgxpool.Pool) SupplierPriceStore {
	return &supplierPriceRepository{pool: pool}
}

const supplierPriceColumns = `id, supplier_id, catalog_entry_id, price, previous_price,
	price_change_pct, min_order_qty, lead_time_days, stock_qty,
	supplier_code, supplier_label, discontinued, created_at, updated_at`

func scanSupplierPrice(row pgx.CollectableRow) (domain.SupplierPrice, error) {
	var p domain.SupplierPrice
	err := row.Scan(&p.ID, &p.SupplierID, &p.CatalogEntryID, &p.Price, &p.PreviousPrice,
		&p.PriceChangePct, &p.MinOrderQty, &p.LeadTimeDays, &p.StockQty,
		&p.SupplierCode, &p.SupplierLabel, &p.Discontinued, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *supplierPriceRepository) MapBySupplier(ctx context.Context, supplierID int64) (map[uuid.UUID]domain.SupplierPrice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+supplierPriceColumns+` FROM supplier_prices WHERE supplier_id = $1`,
		supplierID,
	)
	if err != nil {
		return nil, fmt.Errorf("list supplier prices: %w", err)
	}

	prices, err := pgx.CollectRows(rows, scanSupplierPrice)
	if err != nil {
		return nil, fmt.Errorf("scan supplier prices: %w", err)
	}

	result := make(map[uuid.UUID]domain.SupplierPrice, len(prices))
	for _, p := range prices {
		result[p.CatalogEntryID] = p
	}
	return result, nil
}

func (r *supplierPriceRepository) DeleteAbsent(ctx context.Context, supplierID int64, keep []uuid.UUID) (int64, error) {
	if keep == nil {
		// A nil slice would encode as SQL NULL and != ALL(NULL) matches
		// nothing; an empty keep set must delete every association.
		keep = []uuid.UUID{}
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM supplier_prices WHERE supplier_id = $1 AND catalog_entry_id != ALL($2)`,
		supplierID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale supplier prices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *supplierPriceRepository) Update(ctx context.Context, p domain.SupplierPrice) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE supplier_prices
		SET price = $3, previous_price = $4, price_change_pct = $5,
		    min_order_qty = $6, lead_time_days = $7, stock_qty = $8,
		    supplier_code = $9, supplier_label = $10, discontinued = $11,
		    updated_at = now()
		WHERE supplier_id = $1 AND catalog_entry_id = $2`,
		p.SupplierID, p.CatalogEntryID, p.Price, p.PreviousPrice, p.PriceChangePct,
		p.MinOrderQty, p.LeadTimeDays, p.StockQty,
		p.SupplierCode, p.SupplierLabel, p.Discontinued,
	)
	if err != nil {
		return fmt.Errorf("update supplier price: %w", err)
	}
	return nil
}

func (r *supplierPriceRepository) Upsert(ctx context.Context, p domain.SupplierPrice) error {
	// The table carries no unique constraint on (supplier_id,
	// catalog_entry_id), so this cannot be INSERT ... ON CONFLICT.
	// Update-first keeps a racing duplicate from being created twice
	// in the common path; a lost race converges on the next import.
	tag, err := r.pool.Exec(ctx, `
		UPDATE supplier_prices
		SET price = $3, previous_price = $4, price_change_pct = $5,
		    min_order_qty = $6, lead_time_days = $7, stock_qty = $8,
		    supplier_code = $9, supplier_label = $10, discontinued = $11,
		    updated_at = now()
		WHERE supplier_id = $1 AND catalog_entry_id = $2`,
		p.SupplierID, p.CatalogEntryID, p.Price, p.PreviousPrice, p.PriceChangePct,
		p.MinOrderQty, p.LeadTimeDays, p.StockQty,
		p.SupplierCode, p.SupplierLabel, p.Discontinued,
	)
	if err != nil {
		return fmt.Errorf("upsert supplier price: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO supplier_prices (
			id, supplier_id, catalog_entry_id, price, previous_price,
			price_change_pct, min_order_qty, lead_time_days, stock_qty,
			supplier_code, supplier_label, discontinued, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())`,
		id, p.SupplierID, p.CatalogEntryID, p.Price, p.PreviousPrice,
		p.PriceChangePct, p.MinOrderQty, p.LeadTimeDays, p.StockQty,
		p.SupplierCode, p.SupplierLabel, p.Discontinued,
	)
	if err != nil {
		return fmt.Errorf("insert supplier price: %w", err)
	}
	return nil
}
