package imagery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

type memBroken struct {
	mu        sync.Mutex
	reports   []domain.BrokenImage
	byCat     map[domain.Category]URLSet
	global    URLSet
	reportErr error
	fetchErr  error
}

func newMemBroken() *memBroken {
	return &memBroken{byCat: make(map[domain.Category]URLSet), global: NewURLSet()}
}

func (m *memBroken) Report(_ context.Context, b domain.BrokenImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, b)
	if m.reportErr != nil {
		return m.reportErr
	}
	if b.Category == nil {
		m.global.Add(b.URL)
		return nil
	}
	if m.byCat[*b.Category] == nil {
		m.byCat[*b.Category] = NewURLSet()
	}
	m.byCat[*b.Category].Add(b.URL)
	return nil
}

func (m *memBroken) BrokenFor(_ context.Context, c domain.Category) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []string
	for u := range m.global {
		out = append(out, u)
	}
	for u := range m.byCat[c] {
		out = append(out, u)
	}
	return out, nil
}

func (m *memBroken) clear() {
	m.mu.Lock()
	m.byCat = make(map[domain.Category]URLSet)
	m.global = NewURLSet()
	m.mu.Unlock()
}

type staticPool struct {
	images map[domain.Category][]string
	err    error
}

func (p staticPool) Images(_ context.Context, c domain.Category) ([]string, error) {
	return p.images[c], p.err
}

func TestResolvePlaceholderWhenNoSources(t *testing.T) {
	r := NewResolver(newMemBroken(), nil, nil, "/img/placeholder.svg")
	got := r.Resolve(context.Background(), domain.ListingRecord{BusinessName: "Bare"})
	assert.Equal(t, Resolution{URL: "/img/placeholder.svg", Source: domain.SourcePlaceholder, State: StatePlaceholder}, got)

	r = NewResolver(nil, nil, nil, "")
	assert.Equal(t, DefaultPlaceholder, r.Resolve(context.Background(), domain.ListingRecord{}).URL)
}

func TestResolveThirdPartyPhoto(t *testing.T) {
	r := NewResolver(newMemBroken(), nil, nil, "")
	l := domain.ListingRecord{GooglePhotos: []domain.PhotoRef{{URL: "https://x/1.jpg"}}}
	got := r.Resolve(context.Background(), l)
	assert.Equal(t, "https://x/1.jpg", got.URL)
	assert.Equal(t, StateSelected, got.State)
}

func TestHandleLoadFailureNeverReturnsBrokenURL(t *testing.T) {
	ctx := context.Background()
	broken := newMemBroken()
	r := NewResolver(broken, nil, nil, "")
	l := fullListing()

	first := r.Resolve(ctx, l)
	require.Equal(t, "https://cdn.example/u1.jpg", first.URL)

	next := r.HandleLoadFailure(ctx, l, first.URL, "404")
	assert.Equal(t, "https://cdn.example/u2.jpg", next.URL)

	require.Len(t, broken.reports, 1)
	rep := broken.reports[0]
	assert.Equal(t, first.URL, rep.URL)
	require.NotNil(t, rep.Category)
	assert.Equal(t, domain.CategoryRoofing, *rep.Category)
	assert.Equal(t, domain.ReportedBySystem, rep.ReportedBy)
	assert.Equal(t, "404", rep.ErrorMessage)

	// Later renders keep excluding it.
	for i := 0; i < 3; i++ {
		assert.NotEqual(t, first.URL, r.Resolve(ctx, l).URL)
	}

	// Walk the cascade down to the placeholder.
	res := next
	for res.State == StateSelected {
		res = r.HandleLoadFailure(ctx, l, res.URL, "timeout")
	}
	assert.Equal(t, StatePlaceholder, res.State)

	// Clearing the registry restores the original choice.
	broken.clear()
	assert.Equal(t, first.URL, r.Resolve(ctx, l).URL)
}

func TestHandleLoadFailureInvalidCategoryReportsGlobally(t *testing.T) {
	broken := newMemBroken()
	r := NewResolver(broken, nil, nil, "")
	l := domain.ListingRecord{Category: "Chimney Sweep", UploadedImages: []string{"https://x/a.jpg", "https://x/b.jpg"}}

	got := r.HandleLoadFailure(context.Background(), l, "https://x/a.jpg", "decode error")
	assert.Equal(t, "https://x/b.jpg", got.URL)
	require.Len(t, broken.reports, 1)
	assert.Nil(t, broken.reports[0].Category)
}

func TestHandleLoadFailureReportErrorStillExcludes(t *testing.T) {
	broken := newMemBroken()
	broken.reportErr = errors.New("registry down")
	r := NewResolver(broken, nil, nil, "")
	l := domain.ListingRecord{UploadedImages: []string{"https://x/a.jpg", "https://x/b.jpg"}}

	got := r.HandleLoadFailure(context.Background(), l, "https://x/a.jpg", "404")
	assert.Equal(t, "https://x/b.jpg", got.URL)
}

func TestHandleLoadFailureIgnoresForeignURL(t *testing.T) {
	broken := newMemBroken()
	r := NewResolver(broken, nil, nil, "")
	l := domain.ListingRecord{ID: "l-1", Category: domain.CategoryRoofing, UploadedImages: []string{"https://cdn/a.jpg"}}

	got := r.HandleLoadFailure(context.Background(), l, "https://cdn/other-listing.jpg", "404")
	assert.Equal(t, "https://cdn/a.jpg", got.URL)
	assert.Empty(t, broken.reports)

	other := domain.ListingRecord{Category: domain.CategoryRoofing, UploadedImages: []string{"https://cdn/other-listing.jpg"}}
	assert.Equal(t, "https://cdn/other-listing.jpg", r.Resolve(context.Background(), other).URL)
}

func TestHandleLoadFailureReportsOwnSources(t *testing.T) {
	def := "https://cdn/default.jpg"
	l := domain.ListingRecord{
		Category:              domain.CategoryPlumbing,
		GooglePhotos:          []domain.PhotoRef{{URL: "https://maps/p.jpg"}},
		DefaultSpecialtyImage: &def,
	}
	p := staticPool{images: map[domain.Category][]string{domain.CategoryPlumbing: pool[:1]}}

	for _, u := range []string{"https://maps/p.jpg", def, pool[0]} {
		broken := newMemBroken()
		r := NewResolver(broken, p, nil, "")
		r.HandleLoadFailure(context.Background(), l, u, "404")
		require.Len(t, broken.reports, 1, u)
		assert.Equal(t, u, broken.reports[0].URL)
	}
}

func TestHandleLoadFailurePoolErrorSkipsReport(t *testing.T) {
	broken := newMemBroken()
	r := NewResolver(broken, staticPool{err: errors.New("s3 down")}, nil, "")
	l := domain.ListingRecord{Category: domain.CategoryPlumbing}

	got := r.HandleLoadFailure(context.Background(), l, pool[0], "404")
	assert.Equal(t, StatePlaceholder, got.State)
	assert.Empty(t, broken.reports)
}

func TestResolveBrokenStoreErrorDegradesToPlaceholder(t *testing.T) {
	broken := newMemBroken()
	broken.fetchErr = errors.New("timeout")
	r := NewResolver(broken, nil, nil, "")

	got := r.Resolve(context.Background(), fullListing())
	assert.Equal(t, StatePlaceholder, got.State)
}

func TestResolveCategoryPoolRoundRobin(t *testing.T) {
	ctx := context.Background()
	p := staticPool{images: map[domain.Category][]string{domain.CategoryPlumbing: pool}}
	r := NewResolver(newMemBroken(), p, NewMemoryUsageCache(), "")

	seen := make(map[string]bool)
	for i := 0; i < len(pool); i++ {
		l := domain.ListingRecord{ID: string(rune('a' + i)), Category: domain.CategoryPlumbing}
		got := r.Resolve(ctx, l)
		require.Equal(t, domain.SourceCategoryPool, got.Source)
		assert.False(t, seen[got.URL], "repeated %s", got.URL)
		seen[got.URL] = true
	}
	assert.Len(t, seen, len(pool))
}

func TestResolveCategoryPoolSkipsBroken(t *testing.T) {
	ctx := context.Background()
	broken := newMemBroken()
	p := staticPool{images: map[domain.Category][]string{domain.CategoryPlumbing: pool[:2]}}
	r := NewResolver(broken, p, NewMemoryUsageCache(), "")
	l := domain.ListingRecord{Category: domain.CategoryPlumbing}

	got := r.HandleLoadFailure(ctx, l, pool[0], "404")
	assert.Equal(t, pool[1], got.URL)
	for i := 0; i < 3; i++ {
		assert.Equal(t, pool[1], r.Resolve(ctx, l).URL)
	}

	got = r.HandleLoadFailure(ctx, l, pool[1], "404")
	assert.Equal(t, StatePlaceholder, got.State)
}

func TestResolveCategoryPoolErrorDegrades(t *testing.T) {
	p := staticPool{err: errors.New("s3 down")}
	r := NewResolver(newMemBroken(), p, nil, "")
	got := r.Resolve(context.Background(), domain.ListingRecord{Category: domain.CategoryGardening})
	assert.Equal(t, StatePlaceholder, got.State)
}

func TestResolveListingImageBeatsPool(t *testing.T) {
	p := staticPool{images: map[domain.Category][]string{domain.CategoryRoofing: pool}}
	r := NewResolver(newMemBroken(), p, nil, "")
	got := r.Resolve(context.Background(), fullListing())
	assert.Equal(t, domain.SourceUploaded, got.Source)
}

func TestResolveConcurrentCards(t *testing.T) {
	ctx := context.Background()
	p := staticPool{images: map[domain.Category][]string{domain.CategoryBuilding: pool}}
	r := NewResolver(newMemBroken(), p, NewMemoryUsageCache(), "")

	var wg sync.WaitGroup
	results := make([]Resolution, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(ctx, domain.ListingRecord{Category: domain.CategoryBuilding})
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		assert.Equal(t, StateSelected, res.State)
	}
}
