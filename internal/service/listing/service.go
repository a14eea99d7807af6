package listing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service implements listing business logic. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a listing service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns a single listing.
func (s *Service) Get(ctx context.Context, id string) (*domain.ListingRecord, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns the listing published under slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*domain.ListingRecord, error) {
	return s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

// Search returns a page of listings. The category filter accepts any casing of
// a category label; anything else is rejected.
func (s *Service) Search(ctx context.Context, f ListFilter) ([]domain.ListingRecord, int, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Location = strings.TrimSpace(f.Location)
	if strings.TrimSpace(f.Category) != "" {
		c, ok := domain.ParseCategory(f.Category)
		if !ok {
			return nil, 0, ErrInvalidCategory
		}
		f.Category = string(c)
	} else {
		f.Category = ""
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.Search(ctx, f)
}

// Count returns the number of listings.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// AppendUploadedImage attaches an operator-uploaded image and returns the
// updated listing.
func (s *Service) AppendUploadedImage(ctx context.Context, id, url string) (*domain.ListingRecord, error) {
	url = strings.TrimSpace(url)
	if !domain.IsAbsoluteURL(url) {
		return nil, ErrInvalidImageURL
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.AppendUploadedImage(ctx, id, url); err != nil {
		return nil, fmt.Errorf("append uploaded image: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// ListUnenriched returns listings waiting for their first enrichment.
func (s *Service) ListUnenriched(ctx context.Context, limit int) ([]domain.ListingRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.repo.ListUnenriched(ctx, limit)
}

// ApplyEnrichment merges third-party data into a listing and persists it.
func (s *Service) ApplyEnrichment(ctx context.Context, id string, e Enrichment) (*domain.ListingRecord, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	Merge(l, e, s.now())
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("enriched listing %s invalid: %w", id, err)
	}
	if err := s.repo.SaveEnrichment(ctx, l); err != nil {
		return nil, fmt.Errorf("save enrichment: %w", err)
	}
	return l, nil
}

// Enrichment is third-party data gathered for one listing. Zero values mean
// "not found" and never clear existing data.
type Enrichment struct {
	PlaceID     string
	Rating      *float64
	ReviewCount *int
	Phone       string
	Website     string
	Email       string
	PostalCode  string
	Photos      []domain.PhotoRef
}

// Merge applies e to l. Reputation and photos are refreshed; contact details
// only fill gaps so operator-entered values win.
func Merge(l *domain.ListingRecord, e Enrichment, at time.Time) {
	if id := strings.TrimSpace(e.PlaceID); id != "" {
		l.PlaceID = &id
	}
	if e.Rating != nil && *e.Rating >= 0 && *e.Rating <= 5 {
		r := *e.Rating
		l.Rating = &r
	}
	if e.ReviewCount != nil && *e.ReviewCount >= 0 {
		l.ReviewCount = *e.ReviewCount
	}
	if l.Phone == nil {
		l.Phone = domain.StringPtr(e.Phone)
	}
	if l.Website == nil && domain.IsAbsoluteURL(e.Website) {
		l.Website = domain.StringPtr(e.Website)
	}
	if l.Email == nil {
		l.Email = domain.StringPtr(strings.ToLower(e.Email))
	}
	if l.PostalCode == nil {
		l.PostalCode = domain.StringPtr(strings.ToUpper(e.PostalCode))
	}
	if len(e.Photos) > 0 {
		photos := make([]domain.PhotoRef, 0, len(e.Photos))
		for _, p := range e.Photos {
			if domain.IsAbsoluteURL(p.URL) {
				photos = append(photos, p)
			}
		}
		if len(photos) > 0 {
			l.GooglePhotos = photos
		}
	}
	t := at.UTC()
	l.EnrichedAt = &t
}

// SlugFor derives the slug for a listing. When the plain slug is taken the
// first eight id characters are appended.
func SlugFor(name, id string, taken bool) string {
	base := domain.Slugify(name)
	if base == "" {
		base = "listing"
	}
	if !taken {
		return base
	}
	suffix := domain.Slugify(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}
