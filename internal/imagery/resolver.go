package imagery

import (
	"context"
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
)

// DefaultPlaceholder is served when nothing else is eligible.
const DefaultPlaceholder = "/static/images/placeholder-listing.svg"

// State is the terminal state of one resolution.
type State string

const (
	StateSelected    State = "selected"
	StatePlaceholder State = "placeholder"
)

// Resolution is the image a listing card should display.
type Resolution struct {
	URL    string             `json:"url"`
	Source domain.ImageSource `json:"source"`
	State  State              `json:"state"`
}

// BrokenStore is the registry of URLs known to fail. BrokenFor returns the
// URLs broken for category together with those reported without one.
type BrokenStore interface {
	Report(ctx context.Context, b domain.BrokenImage) error
	BrokenFor(ctx context.Context, category domain.Category) ([]string, error)
}

// CategoryPool lists the default images available for a category.
type CategoryPool interface {
	Images(ctx context.Context, category domain.Category) ([]string, error)
}

// Resolver runs the image cascade for one listing at a time. It is safe for
// concurrent use when its collaborators are.
type Resolver struct {
	broken      BrokenStore
	pool        CategoryPool
	usage       UsageCache
	placeholder string
}

// NewResolver wires a resolver. pool and usage may be nil, in which case
// listings without their own image go straight to the placeholder.
func NewResolver(broken BrokenStore, pool CategoryPool, usage UsageCache, placeholder string) *Resolver {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if usage == nil {
		usage = NewMemoryUsageCache()
	}
	return &Resolver{broken: broken, pool: pool, usage: usage, placeholder: placeholder}
}

// Placeholder returns the static fallback asset.
func (r *Resolver) Placeholder() Resolution {
	return Resolution{URL: r.placeholder, Source: domain.SourcePlaceholder, State: StatePlaceholder}
}

// Resolve picks the image for l, excluding URLs already known to be broken.
func (r *Resolver) Resolve(ctx context.Context, l domain.ListingRecord) Resolution {
	return r.resolve(ctx, l, nil)
}

// HandleLoadFailure records failedURL as broken and picks a replacement. The
// report completes before the replacement is chosen; if it fails the URL is
// still excluded from this resolution. Only URLs the cascade could have
// served for l are recorded, so a caller cannot blacklist another listing's
// image.
func (r *Resolver) HandleLoadFailure(ctx context.Context, l domain.ListingRecord, failedURL, errMsg string) Resolution {
	failedURL = strings.TrimSpace(failedURL)
	if failedURL == "" || failedURL == r.placeholder {
		return r.resolve(ctx, l, nil)
	}
	if !r.servable(ctx, l, failedURL) {
		logger.Warn("imagery: ignoring failure for url not served to listing",
			"listing_id", l.ID, "url", failedURL)
		return r.resolve(ctx, l, NewURLSet(failedURL))
	}

	report := domain.BrokenImage{
		URL:          failedURL,
		ReportedBy:   domain.ReportedBySystem,
		ErrorMessage: errMsg,
	}
	if l.Category.Valid() {
		cat := l.Category
		report.Category = &cat
	}
	if r.broken != nil {
		if err := r.broken.Report(ctx, report); err != nil {
			logger.Warn("imagery: broken image report failed",
				"listing_id", l.ID, "url", failedURL, "error", err.Error())
		}
	}
	return r.resolve(ctx, l, NewURLSet(failedURL))
}

// servable reports whether u is one of l's own images or a current pool
// image for its category.
func (r *Resolver) servable(ctx context.Context, l domain.ListingRecord, u string) bool {
	own := NewURLSet(l.UploadedImages...)
	for _, p := range l.GooglePhotos {
		own.Add(p.URL)
	}
	if l.DefaultSpecialtyImage != nil {
		own.Add(*l.DefaultSpecialtyImage)
	}
	if own.Has(u) {
		return true
	}
	if r.pool == nil || !l.Category.Valid() {
		return false
	}
	images, err := r.pool.Images(ctx, l.Category)
	if err != nil {
		logger.Warn("imagery: category pool unavailable",
			"category", string(l.Category), "error", err.Error())
		return false
	}
	return NewURLSet(images...).Has(u)
}

func (r *Resolver) resolve(ctx context.Context, l domain.ListingRecord, extra URLSet) Resolution {
	exclude := NewURLSet()
	for u := range extra {
		exclude.Add(u)
	}
	if r.broken != nil {
		urls, err := r.broken.BrokenFor(ctx, l.Category)
		if err != nil {
			logger.Warn("imagery: broken set unavailable, using placeholder",
				"listing_id", l.ID, "error", err.Error())
			return r.Placeholder()
		}
		for _, u := range urls {
			exclude.Add(u)
		}
	}

	if c, ok := Select(l, exclude); ok {
		return Resolution{URL: c.URL, Source: c.Source, State: StateSelected}
	}

	if u, ok := r.fromPool(ctx, l, exclude); ok {
		return Resolution{URL: u, Source: domain.SourceCategoryPool, State: StateSelected}
	}
	return r.Placeholder()
}

func (r *Resolver) fromPool(ctx context.Context, l domain.ListingRecord, exclude URLSet) (string, bool) {
	if r.pool == nil || !l.Category.Valid() {
		return "", false
	}
	images, err := r.pool.Images(ctx, l.Category)
	if err != nil {
		logger.Warn("imagery: category pool unavailable",
			"category", string(l.Category), "error", err.Error())
		return "", false
	}
	usable := make([]string, 0, len(images))
	for _, u := range images {
		if eligible(u, exclude) {
			usable = append(usable, strings.TrimSpace(u))
		}
	}
	if len(usable) == 0 {
		return "", false
	}
	picked, err := r.usage.Pick(ctx, l.Category, usable)
	if err != nil {
		logger.Warn("imagery: usage cache pick failed",
			"category", string(l.Category), "error", err.Error())
		return "", false
	}
	return picked, true
}
