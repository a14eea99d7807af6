package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// ImportLogRepo stores import batch summaries.
type ImportLogRepo struct{ db *sql.DB }

// NewImportLogRepo creates a Postgres-backed import log repository.
func NewImportLogRepo(db *sql.DB) *ImportLogRepo { return &ImportLogRepo{db: db} }

// Save inserts res and assigns its ID.
func (r *ImportLogRepo) Save(ctx context.Context, res *domain.ImportBatchResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	rowErrs := res.RowErrors
	if rowErrs == nil {
		rowErrs = []domain.RowError{}
	}
	rowErrors, err := json.Marshal(rowErrs)
	if err != nil {
		return fmt.Errorf("encode row errors: %w", err)
	}
	unmapped := res.UnmappedHeaders
	if unmapped == nil {
		unmapped = []string{}
	}
	headers, err := json.Marshal(unmapped)
	if err != nil {
		return fmt.Errorf("encode unmapped headers: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO import_logs
			(id, source_file, valid_count, invalid_count, succeeded_count, failed_count,
			 row_errors, unmapped_headers, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.SourceFile, res.Valid, res.Invalid, res.Succeeded, res.Failed,
		string(rowErrors), string(headers), res.StartedAt, res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("save import log: %w", err)
	}
	return nil
}

// Recent returns the latest import summaries, newest first.
func (r *ImportLogRepo) Recent(ctx context.Context, limit int) ([]domain.ImportBatchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_file, valid_count, invalid_count, succeeded_count, failed_count,
		       row_errors, unmapped_headers, started_at, duration_ms
		FROM import_logs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent import logs: %w", err)
	}
	defer rows.Close()

	out := []domain.ImportBatchResult{}
	for rows.Next() {
		var (
			res               domain.ImportBatchResult
			rowErrors, header []byte
			durationMS        int64
		)
		if err := rows.Scan(&res.ID, &res.SourceFile, &res.Valid, &res.Invalid, &res.Succeeded, &res.Failed,
			&rowErrors, &header, &res.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan import log: %w", err)
		}
		if err := json.Unmarshal(rowErrors, &res.RowErrors); err != nil {
			return nil, fmt.Errorf("decode row errors: %w", err)
		}
		if err := json.Unmarshal(header, &res.UnmappedHeaders); err != nil {
			return nil, fmt.Errorf("decode unmapped headers: %w", err)
		}
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	return out, rows.Err()
}
