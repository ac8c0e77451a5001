package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/domain"
)

// ErrJobNotFound is returned when a job id does not exist.
var ErrJobNotFound = errors.New("import job not found")

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates the Postgres-backed import job queue.
func NewJobRepository(pool *pgxpool.Pool) JobStore {
	return &jobRepository{pool: pool}
}

const jobColumns = `id, supplier_id, state, file_name, file_data, encoding, separator,
	has_header, mapping, min_stock_qty, min_price, skip_discontinued,
	brand_blacklist, ean_whitelist, created_at, started_at, finished_at`

func scanJob(row pgx.CollectableRow) (domain.ImportJob, error) {
	var (
		j          domain.ImportJob
		state      string
		mappingRaw []byte
		startedAt  *time.Time
		finishedAt *time.Time
	)
	err := row.Scan(&j.ID, &j.SupplierID, &state, &j.FileName, &j.FileData, &j.Encoding,
		&j.Separator, &j.HasHeader, &mappingRaw, &j.MinStockQty, &j.MinPrice,
		&j.SkipDiscontinued, &j.BrandBlacklist, &j.EANWhitelist,
		&j.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return domain.ImportJob{}, err
	}

	j.State = domain.JobState(state)
	if len(mappingRaw) > 0 {
		if err := json.Unmarshal(mappingRaw, &j.Mapping); err != nil {
			return domain.ImportJob{}, fmt.Errorf("decode job mapping: %w", err)
		}
	}
	if startedAt != nil {
		j.StartedAt = *startedAt
	}
	if finishedAt != nil {
		j.FinishedAt = *finishedAt
	}
	return j, nil
}

func (r *jobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.State = domain.JobQueued

	mappingRaw, err := json.Marshal(job.Mapping)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("encode job mapping: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO import_jobs (
			id, supplier_id, state, file_name, file_data, encoding, separator,
			has_header, mapping, min_stock_qty, min_price, skip_discontinued,
			brand_blacklist, ean_whitelist, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		RETURNING created_at`,
		job.ID, job.SupplierID, string(job.State), job.FileName, job.FileData,
		job.Encoding, job.Separator, job.HasHeader, mappingRaw,
		job.MinStockQty, job.MinPrice, job.SkipDiscontinued,
		job.BrandBlacklist, job.EANWhitelist,
	).Scan(&job.CreatedAt)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("create import job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE id = $1`, id)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("get import job: %w", err)
	}

	job, err := pgx.CollectOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, ErrJobNotFound
	}
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("scan import job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) List(ctx context.Context, supplierID int64, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM import_jobs ORDER BY created_at DESC LIMIT $1`
	args := []any{limit}
	if supplierID != 0 {
		query = `SELECT ` + jobColumns + ` FROM import_jobs WHERE supplier_id = $2 ORDER BY created_at DESC LIMIT $1`
		args = append(args, supplierID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list import jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("scan import jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) NextQueued(ctx context.Context) (domain.ImportJob, bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM import_jobs
		 WHERE state = $1 ORDER BY created_at ASC LIMIT 1`,
		string(domain.JobQueued),
	)
	if err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("next queued job: %w", err)
	}

	job, err := pgx.CollectOneRow(rows, scanJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ImportJob{}, false, nil
	}
	if err != nil {
		return domain.ImportJob{}, false, fmt.Errorf("scan queued job: %w", err)
	}
	return job, true, nil
}

func (r *jobRepository) ListProcessing(ctx context.Context) ([]domain.ImportJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM import_jobs WHERE state = $1`,
		string(domain.JobProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("list processing jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("scan processing jobs: %w", err)
	}
	return jobs, nil
}

func (r *jobRepository) SetState(ctx context.Context, id uuid.UUID, state domain.JobState) error {
	var query string
	switch state {
	case domain.JobProcessing:
		query = `UPDATE import_jobs SET state = $2, started_at = now() WHERE id = $1`
	case domain.JobDone, domain.JobFailed:
		query = `UPDATE import_jobs SET state = $2, finished_at = now() WHERE id = $1`
	default:
		query = `UPDATE import_jobs SET state = $2, started_at = NULL, finished_at = NULL WHERE id = $1`
	}

	tag, err := r.pool.Exec(ctx, query, id, string(state))
	if err != nil {
		return fmt.Errorf("set job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *jobRepository) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM import_jobs
		WHERE state = ANY($1) AND finished_at < $2`,
		[]string{string(domain.JobDone), string(domain.JobFailed)}, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
