package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

type templateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository creates the Postgres-backed mapping template store.
func NewTemplateRepository(pool *pgxpool.Pool) MappingTemplateStore {
	return &templateRepository{pool: pool}
}

func (r *templateRepository) Get(ctx context.Context, supplierID int64) (domain.ColumnMapping, bool, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT columns FROM mapping_templates WHERE supplier_id = $1`,
		supplierID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get mapping template: %w", err)
	}

	var m domain.ColumnMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("decode mapping template: %w", err)
	}
	return m, true, nil
}

func (r *templateRepository) Save(ctx context.Context, supplierID int64, m domain.ColumnMapping) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mapping template: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO mapping_templates (supplier_id, columns, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (supplier_id) DO UPDATE SET columns = $2, updated_at = now()`,
		supplierID, raw,
	)
	if err != nil {
		return fmt.Errorf("save mapping template: %w", err)
	}
	return nil
}
