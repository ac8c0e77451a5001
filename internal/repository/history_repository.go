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

// ErrHistoryNotFound is returned when a job has no history record yet.
var ErrHistoryNotFound = errors.New("job history not found")

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates the Postgres-backed job history store.
func NewHistoryRepository(pool *pgxpool.Pool) JobHistoryStore {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Start(ctx context.Context, jobID uuid.UUID, snapshot domain.ColumnMapping) error {
	snapshotRaw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode mapping snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO import_job_history (
			job_id, status, stage, checkpoint_at, mapping_snapshot
		) VALUES ($1, $2, 'picked', now(), $3)
		ON CONFLICT (job_id) DO UPDATE
		SET status = $2, stage = 'picked', checkpoint_at = now(),
		    mapping_snapshot = $3, summary = '', duration_ms = 0`,
		jobID, string(domain.HistoryRunning), snapshotRaw,
	)
	if err != nil {
		return fmt.Errorf("start job history: %w", err)
	}
	return nil
}

func (r *historyRepository) Checkpoint(ctx context.Context, jobID uuid.UUID, stage string, counts domain.JobCounts) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE import_job_history
		SET stage = $2, checkpoint_at = now(),
		    total_rows = $3, created_count = $4, updated_count = $5,
		    skipped_count = $6, error_count = $7, removed_count = $8,
		    archived_count = $9, reactivated_count = $10
		WHERE job_id = $1`,
		jobID, stage,
		counts.TotalRows, counts.Created, counts.Updated,
		counts.Skipped, counts.Errors, counts.Removed,
		counts.Archived, counts.Reactivated,
	)
	if err != nil {
		return fmt.Errorf("checkpoint job history: %w", err)
	}
	return nil
}

func (r *historyRepository) Finish(ctx context.Context, jobID uuid.UUID, status domain.HistoryStatus, counts domain.JobCounts, summary string, duration time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE import_job_history
		SET status = $2, checkpoint_at = now(), summary = $3, duration_ms = $4,
		    total_rows = $5, created_count = $6, updated_count = $7,
		    skipped_count = $8, error_count = $9, removed_count = $10,
		    archived_count = $11, reactivated_count = $12
		WHERE job_id = $1`,
		jobID, string(status), summary, duration.Milliseconds(),
		counts.TotalRows, counts.Created, counts.Updated,
		counts.Skipped, counts.Errors, counts.Removed,
		counts.Archived, counts.Reactivated,
	)
	if err != nil {
		return fmt.Errorf("finish job history: %w", err)
	}
	return nil
}

func (r *historyRepository) Get(ctx context.Context, jobID uuid.UUID) (domain.JobHistory, error) {
	var (
		h           domain.JobHistory
		status      string
		snapshotRaw []byte
		durationMs  int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT job_id, status, stage, checkpoint_at,
		       total_rows, created_count, updated_count, skipped_count,
		       error_count, removed_count, archived_count, reactivated_count,
		       summary, mapping_snapshot, duration_ms
		FROM import_job_history WHERE job_id = $1`,
		jobID,
	).Scan(&h.JobID, &status, &h.Stage, &h.CheckpointAt,
		&h.Counts.TotalRows, &h.Counts.Created, &h.Counts.Updated, &h.Counts.Skipped,
		&h.Counts.Errors, &h.Counts.Removed, &h.Counts.Archived, &h.Counts.Reactivated,
		&h.Summary, &snapshotRaw, &durationMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.JobHistory{}, ErrHistoryNotFound
	}
	if err != nil {
		return domain.JobHistory{}, fmt.Errorf("get job history: %w", err)
	}

	h.Status = domain.HistoryStatus(status)
	h.Duration = time.Duration(durationMs) * time.Millisecond
	if len(snapshotRaw) > 0 {
		if err := json.Unmarshal(snapshotRaw, &h.MappingSnapshot); err != nil {
			return domain.JobHistory{}, fmt.Errorf("decode mapping snapshot: %w", err)
		}
	}
	return h, nil
}

func (r *historyRepository) StaleRunning(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_id FROM import_job_history
		WHERE status = $1 AND checkpoint_at < $2`,
		string(domain.HistoryRunning), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale running histories: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var id uuid.UUID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale job ids: %w", err)
	}
	return ids, nil
}
