package listing

import (
	"context"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// Repository defines the data access contract for listings.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single listing. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.ListingRecord, error)

	// GetBySlug returns the listing with the given slug, or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.ListingRecord, error)

	// Search returns listings matching the filter ordered by rating then
	// name, along with the total match count.
	Search(ctx context.Context, filter ListFilter) ([]domain.ListingRecord, int, error)

	// Count returns the number of listings.
	Count(ctx context.Context) (int, error)

	// AppendUploadedImage adds url to the end of the listing's uploaded images.
	AppendUploadedImage(ctx context.Context, id, url string) error

	// SaveEnrichment persists the enrichment-owned columns of l.
	SaveEnrichment(ctx context.Context, l *domain.ListingRecord) error

	// ListUnenriched returns up to limit listings never enriched, oldest first.
	ListUnenriched(ctx context.Context, limit int) ([]domain.ListingRecord, error)
}

// ListFilter controls pagination and filtering for listing searches.
type ListFilter struct {
	Query    string
	Category string
	Location string
	Limit    int
	Offset   int
}
