package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/datanorm"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/distlock"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httputil"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/places"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/brokenimage"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/service/listing"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/storage"
)

const multipartMemory = 8 << 20

type previewMapsRequest struct {
	SourceFile string              `json:"source_file"`
	Rows       []map[string]string `json:"rows"`
}

// PreviewImport parses an upload and returns every row for review. Accepts a
// multipart "file" field or JSON rows.
//
//	POST /api/admin/import/preview
func (h *Handlers) PreviewImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "import not configured")
		return
	}

	var (
		preview *datanorm.Preview
		err     error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.limits.ImportBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			respondFormError(w, err)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "missing file field")
			return
		}
		defer file.Close()
		preview, err = h.importer.Preview(r.Context(), datanorm.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		})
		if err != nil {
			respondImportError(w, err)
			return
		}
	} else {
		var req previewMapsRequest
		if !httputil.Decode(w, r, &req, h.limits.ImportBytes) {
			return
		}
		if req.SourceFile == "" {
			req.SourceFile = "api"
		}
		preview, err = h.importer.PreviewMaps(req.SourceFile, req.Rows)
		if err != nil {
			respondImportError(w, err)
			return
		}
	}
	httputil.OK(w, preview)
}

func respondImportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datanorm.ErrUnsupportedFileType),
		errors.Is(err, datanorm.ErrEmptyFile),
		errors.Is(err, datanorm.ErrUnreadableFile),
		errors.Is(err, datanorm.ErrTooManyRows):
		httputil.BadRequest(w, err.Error())
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to read import file")
	}
}

func respondFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	httputil.BadRequest(w, "invalid multipart form")
}

type commitRequest struct {
	SourceFile string             `json:"source_file"`
	Records    []domain.ImportRow `json:"records"`
}

// CommitImport persists confirmed records and logs the batch.
//
//	POST /api/admin/import/commit
func (h *Handlers) CommitImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "import not configured")
		return
	}
	var req commitRequest
	if !httputil.Decode(w, r, &req, h.limits.ImportBytes) {
		return
	}
	if len(req.Records) == 0 {
		httputil.BadRequest(w, "no records to import")
		return
	}

	res, err := h.importer.Commit(r.Context(), req.SourceFile, req.Records)
	if res != nil && h.logs != nil {
		if logErr := h.logs.Save(r.Context(), res); logErr != nil {
			logger.Warn("api: import log not saved", "source_file", req.SourceFile, "error", logErr)
		}
	}
	if err != nil {
		logger.Error("api: import commit failed", "source_file", req.SourceFile, "error", err)
		httputil.JSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  safeErrorMessage(http.StatusBadGateway, err),
			"result": res,
		})
		return
	}
	httputil.OK(w, res)
}

// GetImportLogs returns recent import batches.
//
//	GET /api/admin/import/logs?limit=
func (h *Handlers) GetImportLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		httputil.OK(w, []domain.ImportBatchResult{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.logs.Recent(r.Context(), limit)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to load import logs")
		return
	}
	httputil.OK(w, logs)
}

// UploadListingImage stores an operator image and appends it to the
// listing's uploaded images.
//
//	POST /api/admin/listings/{id}/images
func (h *Handlers) UploadListingImage(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "image storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.listings.Get(r.Context(), id); err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			httputil.NotFound(w, "listing not found")
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to load listing")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.ImageBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondFormError(w, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	up, err := h.uploader.Upload(r.Context(), id, header.Filename, file)
	switch {
	case errors.Is(err, storage.ErrImageTooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, storage.ErrUnsupportedImage):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to store image")
		return
	}

	l, err := h.listings.AppendUploadedImage(r.Context(), id, up.URL)
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to attach image")
		return
	}
	httputil.Created(w, map[string]interface{}{
		"image":           up,
		"uploaded_images": l.UploadedImages,
	})
}

// EnrichListing runs enrichment for one listing.
//
//	POST /api/admin/enrich/{id}
func (h *Handlers) EnrichListing(w http.ResponseWriter, r *http.Request) {
	if h.enricher == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}
	out, err := h.enricher.EnrichListing(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, listing.ErrNotFound):
		httputil.NotFound(w, "listing not found")
	case errors.Is(err, places.ErrNotConfigured):
		httputil.Error(w, http.StatusServiceUnavailable, "places api key not configured")
	case err != nil:
		respondSafeError(w, http.StatusBadGateway, err, "Enrichment failed")
	default:
		httputil.OK(w, out)
	}
}

// EnrichPending runs a batch over listings never enriched.
//
//	POST /api/admin/enrich?limit=
func (h *Handlers) EnrichPending(w http.ResponseWriter, r *http.Request) {
	if h.enricher == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := h.enricher.EnrichPending(r.Context(), limit)
	switch {
	case errors.Is(err, distlock.ErrNotAcquired):
		httputil.Error(w, http.StatusConflict, "an enrichment batch is already running")
	case err != nil:
		respondSafeError(w, http.StatusInternalServerError, err, "Enrichment batch failed")
	default:
		httputil.OK(w, res)
	}
}

// ListBrokenImages pages through the broken image registry.
//
//	GET /api/admin/images/broken?category=&page=&limit=
func (h *Handlers) ListBrokenImages(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 100, 500)
	items, total, err := h.broken.List(r.Context(), brokenimage.ListFilter{
		Category: r.URL.Query().Get("category"),
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if errors.Is(err, brokenimage.ErrInvalidCategory) {
		httputil.BadRequest(w, "unknown category")
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to list broken images")
		return
	}
	httputil.OK(w, NewPage(items, params, total))
}

// ClearBrokenImages empties the registry for a category, or entirely.
//
//	DELETE /api/admin/images/broken?category=
func (h *Handlers) ClearBrokenImages(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	n, err := h.broken.Clear(r.Context(), category)
	if errors.Is(err, brokenimage.ErrInvalidCategory) {
		httputil.BadRequest(w, "unknown category")
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to clear broken images")
		return
	}
	httputil.OK(w, map[string]interface{}{"category": category, "removed": n})
}
