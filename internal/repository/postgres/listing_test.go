package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
)

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var listingCols = []string{
	"id", "slug", "business_name", "trading_name", "specialty", "description", "location",
	"postal_code", "phone", "email", "website", "rating", "review_count", "uploaded_images", "google_photos",
	"default_specialty_image", "image_priority", "place_id", "enriched_at", "created_at", "updated_at",
}

func TestListingRepo_GetBySlug(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM listings WHERE slug").
		WithArgs("acme-roofing").
		WillReturnRows(sqlmock.NewRows(listingCols).AddRow(
			"6f1c2a9e-0000-4000-8000-000000000000", "acme-roofing", "Acme Roofing", nil, "Roofing", "Roofs", "London",
			"SW1A 1AA", nil, "info@acme.example", "https://acme.example", 4.5, 12, "{https://cdn.example/a.jpg}",
			[]byte(`[{"url":"https://places.example/p1.jpg","width":400}]`),
			nil, "{google_photos,uploaded_images}", "place-1", now, now, now,
		))

	l, err := repo.GetBySlug(context.Background(), "acme-roofing")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if l.Category != domain.CategoryRoofing {
		t.Errorf("category = %q", l.Category)
	}
	if l.Phone != nil || l.TradingName != nil {
		t.Errorf("null columns should map to nil pointers")
	}
	if l.Rating == nil || *l.Rating != 4.5 || l.ReviewCount != 12 {
		t.Errorf("reputation = %v/%d", l.Rating, l.ReviewCount)
	}
	if len(l.UploadedImages) != 1 || l.UploadedImages[0] != "https://cdn.example/a.jpg" {
		t.Errorf("uploaded = %v", l.UploadedImages)
	}
	if len(l.GooglePhotos) != 1 || l.GooglePhotos[0].Width != 400 {
		t.Errorf("photos = %v", l.GooglePhotos)
	}
	want := []domain.ImageSource{domain.SourceGooglePhotos, domain.SourceUploaded}
	if len(l.ImagePriority) != 2 || l.ImagePriority[0] != want[0] || l.ImagePriority[1] != want[1] {
		t.Errorf("priority = %v", l.ImagePriority)
	}
	if l.EnrichedAt == nil {
		t.Error("enriched_at not scanned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListingRepo_GetNotFound(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)

	// Non-UUID ids never reach the database.
	if _, err := repo.Get(context.Background(), "not-a-uuid"); !errors.Is(err, listing.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	id := "6f1c2a9e-0000-4000-8000-000000000000"
	mock.ExpectQuery("SELECT (.+) FROM listings WHERE id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)
	if _, err := repo.Get(context.Background(), id); !errors.Is(err, listing.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListingRepo_SearchArgs(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM listings WHERE")).
		WithArgs("%roof%", "Roofing", "%london%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT (.+) FROM listings WHERE (.+) LIMIT \\$4 OFFSET \\$5").
		WithArgs("%roof%", "Roofing", "%london%", 20, 40).
		WillReturnRows(sqlmock.NewRows(listingCols))

	got, total, err := repo.Search(context.Background(), listing.ListFilter{
		Query: "roof", Category: "Roofing", Location: "london", Limit: 20, Offset: 40,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Errorf("got %d listings (total %d)", len(got), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListingRepo_AppendUploadedImageMissing(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)

	mock.ExpectExec("UPDATE listings").
		WithArgs("6f1c2a9e-0000-4000-8000-000000000000", "https://cdn.example/x.jpg").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AppendUploadedImage(context.Background(), "6f1c2a9e-0000-4000-8000-000000000000", "https://cdn.example/x.jpg")
	if !errors.Is(err, listing.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListingRepo_BulkUpsert(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)

	records := []domain.ImportRecord{
		{BusinessName: "Acme Roofing", Specialty: domain.CategoryRoofing, Location: "London"},
		{BusinessName: "Broken Row", Specialty: domain.CategoryPlumbing, Location: "Leeds"},
		{BusinessName: "Acme Roofing", Specialty: domain.CategoryRoofing, Location: "Bristol"},
	}

	mock.ExpectBegin()

	mock.ExpectExec("SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme-roofing", "Acme Roofing", "London").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO listings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("id-1"))
	mock.ExpectExec("RELEASE SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO listings").
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))

	// Same name in another town: the plain slug is taken, so the id suffix is used.
	mock.ExpectExec("SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme-roofing", "Acme Roofing", "Bristol").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO listings").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Acme Roofing", "", domain.CategoryRoofing, "", "Bristol", "", "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("id-3"))
	mock.ExpectExec("RELEASE SAVEPOINT listing_sp").WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectCommit()

	out, err := repo.BulkUpsert(context.Background(), records)
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(out))
	}
	if out[0].ID != "id-1" || out[0].Err != nil {
		t.Errorf("row 0 = %+v", out[0])
	}
	if out[1].Err == nil || out[1].Index != 1 {
		t.Errorf("row 1 should fail: %+v", out[1])
	}
	if out[2].ID != "id-3" || out[2].Err != nil {
		t.Errorf("row 2 = %+v", out[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListingRepo_BulkUpsertBeginFails(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewListingRepo(db)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	if _, err := repo.BulkUpsert(context.Background(), []domain.ImportRecord{{BusinessName: "X"}}); err == nil {
		t.Error("expected error when the transaction cannot start")
	}
}
