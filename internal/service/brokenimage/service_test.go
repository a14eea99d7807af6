package brokenimage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.RWMutex
	store map[string]domain.BrokenImage // keyed by "category|url"
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]domain.BrokenImage)}
}

func catKey(c *domain.Category) string {
	if c == nil {
		return ""
	}
	return string(*c)
}

func (m *mockRepo) Report(_ context.Context, b *domain.BrokenImage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	k := catKey(b.Category) + "|" + b.URL
	if _, exists := m.store[k]; exists {
		return false, nil
	}
	m.store[k] = *b
	return true, nil
}

func (m *mockRepo) URLsFor(_ context.Context, c domain.Category) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, b := range m.store {
		if b.Category == nil || *b.Category == c {
			out = append(out, b.URL)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.BrokenImage, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.BrokenImage
	for _, b := range m.store {
		if f.Category != "" && catKey(b.Category) != f.Category {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (m *mockRepo) Clear(_ context.Context, c *domain.Category) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, b := range m.store {
		if c == nil || (b.Category != nil && *b.Category == *c) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

func catPtr(c domain.Category) *domain.Category { return &c }

func TestReport_Idempotent(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := svc.Report(ctx, domain.BrokenImage{URL: " https://x/1.jpg ", Category: catPtr(domain.CategoryRoofing)})
		if err != nil {
			t.Fatalf("Report #%d: %v", i, err)
		}
	}

	count, _ := svc.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 entry, got %d", count)
	}
}

func TestReport_DefaultsReporterAndDropsUnknownCategory(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Report(ctx, domain.BrokenImage{URL: "https://x/2.jpg", Category: catPtr("Chimney")}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	entries, _, _ := repo.List(ctx, ListFilter{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Category != nil {
		t.Errorf("expected global entry, got category %q", *entries[0].Category)
	}
	if entries[0].ReportedBy != domain.ReportedBySystem {
		t.Errorf("ReportedBy = %q, want %q", entries[0].ReportedBy, domain.ReportedBySystem)
	}
}

func TestReport_InvalidURL(t *testing.T) {
	svc := NewService(newMockRepo())
	for _, u := range []string{"", "   ", "/static/placeholder.svg", "mailto:a@b.com"} {
		err := svc.Report(context.Background(), domain.BrokenImage{URL: u})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Report(%q) error = %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestReport_RepositoryErrorWrapped(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	svc := NewService(repo)

	err := svc.Report(context.Background(), domain.BrokenImage{URL: "https://x/3.jpg"})
	if err == nil || !errors.Is(err, repo.err) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

func TestBrokenFor_CategoryScopedAndGlobal(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Report(ctx, domain.BrokenImage{URL: "https://x/roof.jpg", Category: catPtr(domain.CategoryRoofing)})
	_ = svc.Report(ctx, domain.BrokenImage{URL: "https://x/plumb.jpg", Category: catPtr(domain.CategoryPlumbing)})
	_ = svc.Report(ctx, domain.BrokenImage{URL: "https://x/any.jpg"})

	got, err := svc.BrokenFor(ctx, domain.CategoryRoofing)
	if err != nil {
		t.Fatalf("BrokenFor: %v", err)
	}
	want := []string{"https://x/any.jpg", "https://x/roof.jpg"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("BrokenFor(Roofing) = %v, want %v", got, want)
	}
}

func TestClear(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.Report(ctx, domain.BrokenImage{URL: "https://x/a.jpg", Category: catPtr(domain.CategoryRoofing)})
	_ = svc.Report(ctx, domain.BrokenImage{URL: "https://x/b.jpg", Category: catPtr(domain.CategoryPlumbing)})

	n, err := svc.Clear(ctx, "roofing")
	if err != nil || n != 1 {
		t.Fatalf("Clear(roofing) = %d, %v; want 1, nil", n, err)
	}
	if _, err := svc.Clear(ctx, "astrology"); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("Clear(astrology) error = %v, want ErrInvalidCategory", err)
	}
	n, _ = svc.Clear(ctx, "")
	if n != 1 {
		t.Errorf("Clear(all) removed %d, want 1", n)
	}
	if c, _ := svc.Count(ctx); c != 0 {
		t.Errorf("expected empty registry, got %d", c)
	}
}

func TestList_ValidatesCategory(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, _, err := svc.List(context.Background(), ListFilter{Category: "nope"}); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory, got %v", err)
	}
}
