package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// ErrImportErrorNotFound is returned when an error record id does not exist.
var ErrImportErrorNotFound = errors.New("import error not found")

type errorRepository struct {
	pool *pgxpool.Pool
}

// NewErrorRepository creates the Postgres-backed import error store.
func NewErrorRepository(pool *pgxpool.Pool) ImportErrorStore {
	return &errorRepository{pool: pool}
}

func (r *errorRepository) CreateBatch(ctx context.Context, errs []domain.ImportError) error {
	if len(errs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range errs {
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(`
			INSERT INTO import_errors (
				id, job_id, supplier_id, barcode, internal_code,
				product_name, brand, raw_row, kind, resolved, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, now())`,
			id, e.JobID, e.SupplierID, e.Barcode, e.InternalCode,
			e.ProductName, e.Brand, e.RawRow, string(e.Kind),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range errs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert import errors: %w", err)
		}
	}
	return nil
}

func (r *errorRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.ImportError, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, supplier_id, barcode, internal_code, product_name,
		       brand, raw_row, kind, resolved, resolved_by, resolved_at, created_at
		FROM import_errors WHERE job_id = $1 ORDER BY created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list import errors: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ImportError, error) {
		var (
			e          domain.ImportError
			kind       string
			resolvedBy *string
			resolvedAt *time.Time
		)
		err := row.Scan(&e.ID, &e.JobID, &e.SupplierID, &e.Barcode, &e.InternalCode,
			&e.ProductName, &e.Brand, &e.RawRow, &kind, &e.Resolved,
			&resolvedBy, &resolvedAt, &e.CreatedAt)
		if err != nil {
			return domain.ImportError{}, err
		}
		e.Kind = domain.ErrorKind(kind)
		if resolvedBy != nil {
			e.ResolvedBy = *resolvedBy
		}
		if resolvedAt != nil {
			e.ResolvedAt = *resolvedAt
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan import errors: %w", err)
	}
	return records, nil
}

func (r *errorRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE import_errors
		SET resolved = true, resolved_by = $2, resolved_at = now()
		WHERE id = $1`,
		id, resolvedBy,
	)
	if err != nil {
		return fmt.Errorf("resolve import error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrImportErrorNotFound
	}
	return nil
}
