package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
)

// BrokenImageRepo implements brokenimage.Repository against PostgreSQL.
type BrokenImageRepo struct{ db *sql.DB }

// NewBrokenImageRepo creates a Postgres-backed broken image repository.
func NewBrokenImageRepo(db *sql.DB) *BrokenImageRepo { return &BrokenImageRepo{db: db} }

func categoryArg(c *domain.Category) interface{} {
	if c == nil {
		return nil
	}
	return string(*c)
}

func (r *BrokenImageRepo) Report(ctx context.Context, b *domain.BrokenImage) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO broken_images (url, category, reported_by, error_message, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT ((url), (COALESCE(category, ''))) DO NOTHING`,
		b.URL, categoryArg(b.Category), b.ReportedBy, b.ErrorMessage,
	)
	if err != nil {
		return false, fmt.Errorf("report broken image: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *BrokenImageRepo) URLsFor(ctx context.Context, category domain.Category) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT url FROM broken_images WHERE category IS NULL OR category = $1`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("broken urls: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan broken url: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *BrokenImageRepo) List(ctx context.Context, f brokenimage.ListFilter) ([]domain.BrokenImage, int, error) {
	where := ""
	args := []interface{}{}
	if f.Category != "" {
		where = " WHERE category = $1"
		args = append(args, f.Category)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM broken_images`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count broken images: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT url, category, reported_by, error_message, created_at
		FROM broken_images%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list broken images: %w", err)
	}
	defer rows.Close()

	out := []domain.BrokenImage{}
	for rows.Next() {
		var (
			b   domain.BrokenImage
			cat sql.NullString
		)
		if err := rows.Scan(&b.URL, &cat, &b.ReportedBy, &b.ErrorMessage, &b.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan broken image: %w", err)
		}
		if cat.Valid {
			c := domain.Category(cat.String)
			b.Category = &c
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *BrokenImageRepo) Clear(ctx context.Context, category *domain.Category) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if category == nil {
		res, err = r.db.ExecContext(ctx, `DELETE FROM broken_images`)
	} else {
		res, err = r.db.ExecContext(ctx, `DELETE FROM broken_images WHERE category = $1`, string(*category))
	}
	if err != nil {
		return 0, fmt.Errorf("clear broken images: %w", err)
	}
	return res.RowsAffected()
}

func (r *BrokenImageRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM broken_images`).Scan(&n)
	return n, err
}
