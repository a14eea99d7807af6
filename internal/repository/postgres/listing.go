package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
)

// ListingRepo implements listing.Repository and datanorm.Upserter against PostgreSQL.
type ListingRepo struct{ db *sql.DB }

// NewListingRepo creates a Postgres-backed listing repository.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, slug, business_name, trading_name, specialty, description, location,
	postal_code, phone, email, website, rating, review_count, uploaded_images, google_photos,
	default_specialty_image, image_priority, place_id, enriched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(s rowScanner) (*domain.ListingRecord, error) {
	var (
		l                                                     domain.ListingRecord
		trading, postal, phone, email, website, defImg, place sql.NullString
		rating                                                sql.NullFloat64
		enriched                                              sql.NullTime
		uploaded, priority                                    []string
		photos                                                []byte
	)
	err := s.Scan(&l.ID, &l.Slug, &l.BusinessName, &trading, &l.Category, &l.Description, &l.Location,
		&postal, &phone, &email, &website, &rating, &l.ReviewCount, pq.Array(&uploaded), &photos,
		&defImg, pq.Array(&priority), &place, &enriched, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	l.TradingName = nullStr(trading)
	l.PostalCode = nullStr(postal)
	l.Phone = nullStr(phone)
	l.Email = nullStr(email)
	l.Website = nullStr(website)
	l.DefaultSpecialtyImage = nullStr(defImg)
	l.PlaceID = nullStr(place)
	if rating.Valid {
		r := rating.Float64
		l.Rating = &r
	}
	if enriched.Valid {
		t := enriched.Time
		l.EnrichedAt = &t
	}
	l.UploadedImages = uploaded
	if l.UploadedImages == nil {
		l.UploadedImages = []string{}
	}
	for _, p := range priority {
		l.ImagePriority = append(l.ImagePriority, domain.ImageSource(p))
	}
	l.GooglePhotos = []domain.PhotoRef{}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &l.GooglePhotos); err != nil {
			return nil, fmt.Errorf("decode google_photos: %w", err)
		}
	}
	return &l, nil
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func (r *ListingRepo) Get(ctx context.Context, id string) (*domain.ListingRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, listing.ErrNotFound
	}
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, listing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (r *ListingRepo) GetBySlug(ctx context.Context, slug string) (*domain.ListingRecord, error) {
	l, err := scanListing(r.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, listing.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get listing by slug: %w", err)
	}
	return l, nil
}

// searchWhere builds the WHERE clause shared by the count and page queries.
func searchWhere(f listing.ListFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(business_name ILIKE $%d OR trading_name ILIKE $%d OR description ILIKE $%d)", n, n, n))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("specialty = $%d", len(args)))
	}
	if f.Location != "" {
		args = append(args, "%"+f.Location+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(location ILIKE $%d OR postal_code ILIKE $%d)", n, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *ListingRepo) Search(ctx context.Context, f listing.ListFilter) ([]domain.ListingRecord, int, error) {
	where, args := searchWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM listings%s
		ORDER BY rating DESC NULLS LAST, review_count DESC, business_name
		LIMIT $%d OFFSET $%d`, listingColumns, where, len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search listings: %w", err)
	}
	defer rows.Close()

	out := []domain.ListingRecord{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

func (r *ListingRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	return n, err
}

func (r *ListingRepo) AppendUploadedImage(ctx context.Context, id, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET uploaded_images = array_append(uploaded_images, $2), updated_at = NOW()
		WHERE id = $1`, id, url)
	if err != nil {
		return fmt.Errorf("append uploaded image: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return listing.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) SaveEnrichment(ctx context.Context, l *domain.ListingRecord) error {
	photos, err := json.Marshal(l.GooglePhotos)
	if err != nil {
		return fmt.Errorf("encode google_photos: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings SET
			place_id = $2, rating = $3, review_count = $4,
			phone = $5, website = $6, email = $7, postal_code = $8,
			google_photos = $9, enriched_at = $10, updated_at = NOW()
		WHERE id = $1`,
		l.ID, l.PlaceID, l.Rating, l.ReviewCount,
		l.Phone, l.Website, l.Email, l.PostalCode,
		string(photos), l.EnrichedAt,
	)
	if err != nil {
		return fmt.Errorf("save enrichment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return listing.ErrNotFound
	}
	return nil
}

func (r *ListingRepo) ListUnenriched(ctx context.Context, limit int) ([]domain.ListingRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE enriched_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unenriched: %w", err)
	}
	defer rows.Close()

	var out []domain.ListingRecord
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// BulkUpsert writes import records in one transaction with a savepoint per
// row, so a rejected row does not abort the rest. Existing listings matching
// on (name, location) keep any value the import leaves blank.
func (r *ListingRepo) BulkUpsert(ctx context.Context, records []domain.ImportRecord) ([]datanorm.UpsertOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk upsert: %w", err)
	}
	defer tx.Rollback()

	outcomes := make([]datanorm.UpsertOutcome, 0, len(records))
	for i, rec := range records {
		if _, err := tx.ExecContext(ctx, "SAVEPOINT listing_sp"); err != nil {
			return nil, fmt.Errorf("savepoint: %w", err)
		}

		id, err := upsertOne(ctx, tx, rec)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT listing_sp"); rbErr != nil {
				return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			outcomes = append(outcomes, datanorm.UpsertOutcome{Index: i, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT listing_sp"); err != nil {
			return nil, fmt.Errorf("release savepoint: %w", err)
		}
		outcomes = append(outcomes, datanorm.UpsertOutcome{Index: i, ID: id})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk upsert: %w", err)
	}
	return outcomes, nil
}

func upsertOne(ctx context.Context, tx *sql.Tx, rec domain.ImportRecord) (string, error) {
	id := uuid.New().String()
	base := listing.SlugFor(rec.BusinessName, id, false)

	var taken bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM listings
			WHERE slug = $1 AND NOT (lower(business_name) = lower($2) AND lower(location) = lower($3))
		)`, base, rec.BusinessName, rec.Location).Scan(&taken); err != nil {
		return "", fmt.Errorf("check slug: %w", err)
	}
	slug := listing.SlugFor(rec.BusinessName, id, taken)

	var gotID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO listings
			(id, slug, business_name, trading_name, specialty, description, location,
			 postal_code, phone, email, website, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7,
			NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NOW(), NOW())
		ON CONFLICT ((lower(business_name)), (lower(location))) DO UPDATE SET
			trading_name = COALESCE(EXCLUDED.trading_name, listings.trading_name),
			specialty    = EXCLUDED.specialty,
			description  = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
			postal_code  = COALESCE(EXCLUDED.postal_code, listings.postal_code),
			phone        = COALESCE(EXCLUDED.phone, listings.phone),
			email        = COALESCE(EXCLUDED.email, listings.email),
			website      = COALESCE(EXCLUDED.website, listings.website),
			updated_at   = NOW()
		RETURNING id`,
		id, slug, rec.BusinessName, rec.TradingName, rec.Specialty, rec.Description, rec.Location,
		rec.PostalCode, rec.Phone, rec.Email, rec.Website,
	).Scan(&gotID)
	if err != nil {
		return "", fmt.Errorf("upsert listing %q: %w", rec.BusinessName, err)
	}
	return gotID, nil
}
