// Package enrichment fills listings with data from the places API: rating,
// review count, contact details and mirrored photos. Batch runs hold the
// "enrichment:batch" distributed lock.
package enrichment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/config"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/distlock"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httpretry"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/places"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/storage"
)

// LockKey names the batch lock.
const LockKey = "enrichment:batch"

const log = logger.Component("enrichment")

// PlacesAPI is the places client surface used here.
type PlacesAPI interface {
	FindPlace(ctx context.Context, query string) (*places.Candidate, error)
	Details(ctx context.Context, placeID string) (*places.Details, error)
	Photo(ctx context.Context, ref string, maxWidth int) ([]byte, string, error)
}

// Listings is satisfied by *listing.Service.
type Listings interface {
	Get(ctx context.Context, id string) (*domain.ListingRecord, error)
	ListUnenriched(ctx context.Context, limit int) ([]domain.ListingRecord, error)
	ApplyEnrichment(ctx context.Context, id string, e listing.Enrichment) (*domain.ListingRecord, error)
}

// PhotoStore is satisfied by *storage.ImageStore.
type PhotoStore interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Options tunes an Enricher.
type Options struct {
	MaxPhotos     int
	PhotoMaxWidth int
	JPEGQuality   int
	Concurrency   int
	BatchSize     int
	ScrapeEmail   bool
}

// OptionsFromConfig maps the enrichment and images config sections.
func OptionsFromConfig(e config.EnrichmentConfig, img config.ImagesConfig) Options {
	return Options{
		MaxPhotos:     e.MaxPhotos,
		PhotoMaxWidth: e.PhotoMaxWidth,
		JPEGQuality:   img.JPEGQuality,
		Concurrency:   e.Concurrency,
		BatchSize:     e.BatchSize,
		ScrapeEmail:   e.ScrapeEmail,
	}
}

// Outcome reports what one enrichment found.
type Outcome struct {
	Listing        *domain.ListingRecord `json:"listing"`
	Matched        bool                  `json:"matched"`
	PhotosMirrored int                   `json:"photos_mirrored"`
	EmailFound     bool                  `json:"email_found"`
}

// BatchResult summarises an EnrichPending run.
type BatchResult struct {
	Attempted  int           `json:"attempted"`
	Enriched   int           `json:"enriched"`
	NoMatch    int           `json:"no_match"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
}

// Enricher runs place lookups for listings.
type Enricher struct {
	places   PlacesAPI
	listings Listings
	photos   PhotoStore
	lock     distlock.DistLock
	web      httpretry.HTTPDoer
	opts     Options
}

// New creates an Enricher. lock may be nil, in which case batch runs are not
// serialised across processes.
func New(p PlacesAPI, l Listings, photos PhotoStore, lock distlock.DistLock, opts Options) *Enricher {
	if opts.MaxPhotos < 0 {
		opts.MaxPhotos = 0
	}
	if opts.PhotoMaxWidth <= 0 {
		opts.PhotoMaxWidth = 1200
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 85
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Enricher{
		places:   p,
		listings: l,
		photos:   photos,
		lock:     lock,
		web:      &http.Client{Timeout: 10 * time.Second},
		opts:     opts,
	}
}

// SetWebClient replaces the client used to fetch listing websites.
func (e *Enricher) SetWebClient(doer httpretry.HTTPDoer) { e.web = doer }

// EnrichListing looks up one listing and persists whatever was found. A
// listing with no place match is still stamped as enriched so batch runs move
// past it.
func (e *Enricher) EnrichListing(ctx context.Context, id string) (*Outcome, error) {
	l, err := e.listings.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var enr listing.Enrichment
	out := &Outcome{}

	cand, err := e.places.FindPlace(ctx, placeQuery(l))
	switch {
	case errors.Is(err, places.ErrNoMatch):
		log.Info("no place match", "listing_id", l.ID, "business_name", l.BusinessName)
	case err != nil:
		return nil, fmt.Errorf("find place for %s: %w", l.ID, err)
	default:
		details, err := e.places.Details(ctx, cand.PlaceID)
		if err != nil && !errors.Is(err, places.ErrNoMatch) {
			return nil, fmt.Errorf("place details for %s: %w", l.ID, err)
		}
		if details != nil {
			out.Matched = true
			enr = listing.Enrichment{
				PlaceID:     details.PlaceID,
				Rating:      details.Rating,
				ReviewCount: details.ReviewCount,
				Phone:       details.Phone,
				Website:     details.Website,
				PostalCode:  details.PostalCode,
			}
			enr.Photos = e.mirrorPhotos(ctx, l.ID, details.Photos)
			out.PhotosMirrored = len(enr.Photos)
		}
	}

	if e.opts.ScrapeEmail && l.Email == nil {
		site := enr.Website
		if l.Website != nil {
			site = *l.Website
		}
		if site != "" {
			email, err := FindContactEmail(ctx, e.web, site)
			if err != nil {
				log.Warn("website scrape failed", "listing_id", l.ID, "website", site, "error", err)
			} else if email != "" {
				enr.Email = email
				out.EmailFound = true
			}
		}
	}

	updated, err := e.listings.ApplyEnrichment(ctx, l.ID, enr)
	if err != nil {
		return nil, err
	}
	out.Listing = updated
	log.Info("listing enriched",
		"listing_id", l.ID, "matched", out.Matched,
		"photos", out.PhotosMirrored, "email_found", out.EmailFound)
	return out, nil
}

func placeQuery(l *domain.ListingRecord) string {
	parts := []string{strings.TrimSpace(l.BusinessName)}
	if loc := strings.TrimSpace(l.Location); loc != "" && loc != datanorm.DefaultLocationPlaceholder {
		parts = append(parts, loc)
	}
	return strings.Join(parts, ", ")
}

// mirrorPhotos copies up to MaxPhotos place photos into the image store.
// Individual photo failures are logged and skipped.
func (e *Enricher) mirrorPhotos(ctx context.Context, listingID string, photos []places.Photo) []domain.PhotoRef {
	if e.photos == nil || e.opts.MaxPhotos == 0 {
		return nil
	}
	var refs []domain.PhotoRef
	for i, p := range photos {
		if len(refs) >= e.opts.MaxPhotos {
			break
		}
		ref, err := e.mirrorPhoto(ctx, listingID, i, p)
		if err != nil {
			log.Warn("photo mirror failed", "listing_id", listingID, "index", i, "error", err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (e *Enricher) mirrorPhoto(ctx context.Context, listingID string, n int, p places.Photo) (domain.PhotoRef, error) {
	data, _, err := e.places.Photo(ctx, p.Reference, e.opts.PhotoMaxWidth)
	if err != nil {
		return domain.PhotoRef{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return domain.PhotoRef{}, fmt.Errorf("decoding photo: %w", err)
	}
	jpg, w, h, err := storage.EncodeJPEG(img, e.opts.PhotoMaxWidth, e.opts.JPEGQuality)
	if err != nil {
		return domain.PhotoRef{}, fmt.Errorf("encoding photo: %w", err)
	}
	key := fmt.Sprintf("listings/%s/places/%d.jpg", listingID, n)
	url, err := e.photos.PutObject(ctx, key, "image/jpeg", jpg)
	if err != nil {
		return domain.PhotoRef{}, err
	}
	return domain.PhotoRef{URL: url, Width: w, Height: h, Attribution: p.Attribution}, nil
}

// EnrichPending enriches up to limit listings that were never enriched. It
// returns distlock.ErrNotAcquired when another run holds the lock. Failures
// of single listings are counted, not returned.
func (e *Enricher) EnrichPending(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = e.opts.BatchSize
	}
	res := &BatchResult{}
	run := func(ctx context.Context) error {
		return e.enrichBatch(ctx, limit, res)
	}

	start := time.Now()
	var err error
	if e.lock != nil {
		err = distlock.Run(ctx, e.lock, run)
	} else {
		err = run(ctx)
	}
	res.Duration = time.Since(start)
	res.DurationMS = res.Duration.Milliseconds()
	if err != nil {
		return nil, err
	}
	log.Info("batch complete",
		"attempted", res.Attempted, "enriched", res.Enriched,
		"no_match", res.NoMatch, "failed", res.Failed,
		"duration_ms", res.DurationMS)
	return res, nil
}

func (e *Enricher) enrichBatch(ctx context.Context, limit int, res *BatchResult) error {
	pending, err := e.listings.ListUnenriched(ctx, limit)
	if err != nil {
		return fmt.Errorf("list unenriched: %w", err)
	}
	res.Attempted = len(pending)

	var enriched, noMatch, failed int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, l := range pending {
		id := l.ID
		g.Go(func() error {
			out, err := e.EnrichListing(gctx, id)
			switch {
			case err != nil:
				atomic.AddInt64(&failed, 1)
				log.Error("listing enrichment failed", "listing_id", id, "error", err)
			case out.Matched:
				atomic.AddInt64(&enriched, 1)
			default:
				atomic.AddInt64(&noMatch, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Enriched = int(enriched)
	res.NoMatch = int(noMatch)
	res.Failed = int(failed)
	return ctx.Err()
}
