package brokenimage

import (
	"context"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// Repository defines the data access contract for the broken image registry.
type Repository interface {
	// Report stores b unless (url, category) is already known. Returns
	// whether a new entry was written.
	Report(ctx context.Context, b *domain.BrokenImage) (bool, error)

	// URLsFor returns URLs reported for category plus those reported without one.
	URLsFor(ctx context.Context, category domain.Category) ([]string, error)

	// List returns registry entries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.BrokenImage, int, error)

	// Clear deletes entries for category, or every entry when category is nil.
	// Returns the number removed.
	Clear(ctx context.Context, category *domain.Category) (int64, error)

	// Count returns the number of registry entries.
	Count(ctx context.Context) (int, error)
}

// ListFilter controls pagination and filtering for registry listings.
// An empty Category lists everything.
type ListFilter struct {
	Category string
	Limit    int
	Offset   int
}
