package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/enrichment"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/imagery"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httputil"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/storage"
)

// ListingService is satisfied by *listing.Service.
type ListingService interface {
	Get(ctx context.Context, id string) (*domain.ListingRecord, error)
	GetBySlug(ctx context.Context, slug string) (*domain.ListingRecord, error)
	Search(ctx context.Context, f listing.ListFilter) ([]domain.ListingRecord, int, error)
	AppendUploadedImage(ctx context.Context, id, url string) (*domain.ListingRecord, error)
}

// ImageResolver is satisfied by *imagery.Resolver.
type ImageResolver interface {
	Resolve(ctx context.Context, l domain.ListingRecord) imagery.Resolution
	HandleLoadFailure(ctx context.Context, l domain.ListingRecord, failedURL, errMsg string) imagery.Resolution
	Placeholder() imagery.Resolution
}

// BrokenImages is satisfied by *brokenimage.Service.
type BrokenImages interface {
	List(ctx context.Context, f brokenimage.ListFilter) ([]domain.BrokenImage, int, error)
	Clear(ctx context.Context, category string) (int64, error)
}

// Importer is satisfied by *datanorm.Importer.
type Importer interface {
	Preview(ctx context.Context, up datanorm.Upload) (*datanorm.Preview, error)
	PreviewMaps(sourceFile string, rows []map[string]string) (*datanorm.Preview, error)
	Commit(ctx context.Context, sourceFile string, records []domain.ImportRow) (*domain.ImportBatchResult, error)
}

// ImportLogs is satisfied by *postgres.ImportLogRepo.
type ImportLogs interface {
	Save(ctx context.Context, res *domain.ImportBatchResult) error
	Recent(ctx context.Context, limit int) ([]domain.ImportBatchResult, error)
}

// ImageUploader is satisfied by *storage.ImageStore.
type ImageUploader interface {
	Upload(ctx context.Context, listingID, filename string, r io.Reader) (*storage.Uploaded, error)
}

// Enricher is satisfied by *enrichment.Enricher.
type Enricher interface {
	EnrichListing(ctx context.Context, id string) (*enrichment.Outcome, error)
	EnrichPending(ctx context.Context, limit int) (*enrichment.BatchResult, error)
}

// Handlers contains all HTTP handlers. Optional collaborators left nil make
// their endpoints answer 503.
type Handlers struct {
	listings ListingService
	resolver ImageResolver
	broken   BrokenImages
	importer Importer
	logs     ImportLogs
	uploader ImageUploader
	enricher Enricher
	limits   Limits
}

// Limits caps request bodies.
type Limits struct {
	ImportBytes int64
	ImageBytes  int64
}

// Deps groups the collaborators handed to NewHandlers.
type Deps struct {
	Listings ListingService
	Resolver ImageResolver
	Broken   BrokenImages
	Importer Importer
	Logs     ImportLogs
	Uploader ImageUploader
	Enricher Enricher
	Limits   Limits
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	if d.Limits.ImportBytes <= 0 {
		d.Limits.ImportBytes = 20 << 20
	}
	if d.Limits.ImageBytes <= 0 {
		d.Limits.ImageBytes = 10 << 20
	}
	return &Handlers{
		listings: d.Listings,
		resolver: d.Resolver,
		broken:   d.Broken,
		importer: d.Importer,
		logs:     d.Logs,
		uploader: d.Uploader,
		enricher: d.Enricher,
		limits:   d.Limits,
	}
}

// ListingView is a listing together with the image it should display.
type ListingView struct {
	*domain.ListingRecord
	Image imagery.Resolution `json:"image"`
}

// CategoryView describes one category for filters.
type CategoryView struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// maxCardResolvers bounds concurrent image resolutions per search page.
const maxCardResolvers = 8

// GetCategories returns the category enumeration.
//
//	GET /api/categories
func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	all := domain.AllCategories()
	out := make([]CategoryView, 0, len(all))
	for _, c := range all {
		out = append(out, CategoryView{Name: string(c), Slug: c.Slug()})
	}
	httputil.OK(w, out)
}

// SearchListings returns a page of listing cards, each with its resolved
// image. Cards resolve concurrently and independently.
//
//	GET /api/listings?q=&category=&location=&page=&limit=
func (h *Handlers) SearchListings(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 20, 100)
	q := r.URL.Query()

	records, total, err := h.listings.Search(r.Context(), listing.ListFilter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if errors.Is(err, listing.ErrInvalidCategory) {
		httputil.BadRequest(w, "unknown category: "+q.Get("category"))
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to search listings")
		return
	}

	views := h.resolveAll(r.Context(), records)
	httputil.OK(w, NewPage(views, params, total))
}

func (h *Handlers) resolveAll(ctx context.Context, records []domain.ListingRecord) []ListingView {
	views := make([]ListingView, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxCardResolvers)
	for i := range records {
		i := i
		g.Go(func() error {
			views[i] = ListingView{ListingRecord: &records[i], Image: h.resolve(gctx, records[i])}
			return nil
		})
	}
	_ = g.Wait()
	return views
}

func (h *Handlers) resolve(ctx context.Context, l domain.ListingRecord) imagery.Resolution {
	if h.resolver == nil {
		return imagery.Resolution{URL: imagery.DefaultPlaceholder, Source: domain.SourcePlaceholder, State: imagery.StatePlaceholder}
	}
	return h.resolver.Resolve(ctx, l)
}

// lookupSlug writes the error response itself and returns nil when the
// listing cannot be loaded.
func (h *Handlers) lookupSlug(w http.ResponseWriter, r *http.Request) *domain.ListingRecord {
	slug := chi.URLParam(r, "slug")
	l, err := h.listings.GetBySlug(r.Context(), slug)
	if errors.Is(err, listing.ErrNotFound) {
		httputil.NotFound(w, "listing not found")
		return nil
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to load listing")
		return nil
	}
	return l
}

// GetListing returns one listing with its resolved image.
//
//	GET /api/listings/{slug}
func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	l := h.lookupSlug(w, r)
	if l == nil {
		return
	}
	httputil.OK(w, ListingView{ListingRecord: l, Image: h.resolve(r.Context(), *l)})
}

// GetListingImage returns only the resolved image.
//
//	GET /api/listings/{slug}/image
func (h *Handlers) GetListingImage(w http.ResponseWriter, r *http.Request) {
	l := h.lookupSlug(w, r)
	if l == nil {
		return
	}
	httputil.OK(w, h.resolve(r.Context(), *l))
}

type brokenImageRequest struct {
	Slug         string `json:"slug"`
	URL          string `json:"url"`
	ErrorMessage string `json:"error_message"`
}

// ReportBrokenImage is called by the browser when an image fails to load. It
// always answers with a displayable image; image failures are never surfaced
// as errors.
//
//	POST /api/images/broken
func (h *Handlers) ReportBrokenImage(w http.ResponseWriter, r *http.Request) {
	var req brokenImageRequest
	if !httputil.Decode(w, r, &req, 64<<10) {
		return
	}
	if h.resolver == nil {
		httputil.OK(w, h.resolve(r.Context(), domain.ListingRecord{}))
		return
	}

	l, err := h.listings.GetBySlug(r.Context(), req.Slug)
	if err != nil {
		if !errors.Is(err, listing.ErrNotFound) {
			logger.Warn("api: broken image listing lookup failed", "slug", req.Slug, "error", err)
		}
		httputil.OK(w, h.resolver.Placeholder())
		return
	}
	httputil.OK(w, h.resolver.HandleLoadFailure(r.Context(), *l, req.URL, strings.TrimSpace(req.ErrorMessage)))
}
