package brokenimage

import (
	"context"
	"fmt"
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
)

// Service implements broken image registry logic. It is safe for concurrent
// use when the repository is. It satisfies imagery.BrokenStore.
type Service struct {
	repo Repository
}

// NewService creates a broken image service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Report records a failing URL. Categories outside the enumeration are
// dropped so the report applies globally. Idempotent.
func (s *Service) Report(ctx context.Context, b domain.BrokenImage) error {
	b.URL = strings.TrimSpace(b.URL)
	if !domain.IsAbsoluteURL(b.URL) {
		return ErrInvalidURL
	}
	if b.Category != nil && !b.Category.Valid() {
		b.Category = nil
	}
	if strings.TrimSpace(b.ReportedBy) == "" {
		b.ReportedBy = domain.ReportedBySystem
	}

	created, err := s.repo.Report(ctx, &b)
	if err != nil {
		return fmt.Errorf("report broken image: %w", err)
	}
	if created {
		cat := "_all"
		if b.Category != nil {
			cat = string(*b.Category)
		}
		logger.Info("brokenimage: url excluded",
			"url", b.URL, "category", cat, "reported_by", b.ReportedBy)
	}
	return nil
}

// BrokenFor returns the URLs that must not be shown for category.
func (s *Service) BrokenFor(ctx context.Context, category domain.Category) ([]string, error) {
	return s.repo.URLsFor(ctx, category)
}

// List returns registry entries matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.BrokenImage, int, error) {
	if f.Category != "" {
		c, ok := domain.ParseCategory(f.Category)
		if !ok {
			return nil, 0, ErrInvalidCategory
		}
		f.Category = string(c)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// Clear empties the registry for one category, or entirely when category is
// blank.
func (s *Service) Clear(ctx context.Context, category string) (int64, error) {
	var cat *domain.Category
	if strings.TrimSpace(category) != "" {
		c, ok := domain.ParseCategory(category)
		if !ok {
			return 0, ErrInvalidCategory
		}
		cat = &c
	}
	n, err := s.repo.Clear(ctx, cat)
	if err != nil {
		return 0, fmt.Errorf("clear broken images: %w", err)
	}
	logger.Info("brokenimage: registry cleared", "category", category, "removed", n)
	return n, nil
}

// Count returns the number of registry entries.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
