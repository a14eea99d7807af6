package datanorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
)

// ErrTooManyRows is returned when an upload exceeds the configured row limit.
var ErrTooManyRows = errors.New("file has too many rows")

// Importer maps, normalizes and validates uploads, and hands confirmed
// records to an Upserter.
type Importer struct {
	classifier  *Classifier
	upserter    Upserter
	placeholder string
	maxRows     int
	now         func() time.Time
}

func NewImporter(upserter Upserter, cfg Config) *Importer {
	placeholder := cfg.LocationPlaceholder
	if placeholder == "" {
		placeholder = DefaultLocationPlaceholder
	}
	return &Importer{
		classifier:  NewClassifier(),
		upserter:    upserter,
		placeholder: placeholder,
		maxRows:     cfg.MaxRows,
		now:         time.Now,
	}
}

// Preview parses an upload and returns every row, valid or not, for review.
func (imp *Importer) Preview(ctx context.Context, up Upload) (*Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ParseUpload(up.Filename, up.ContentType, up.Body)
	if err != nil {
		return nil, err
	}
	return imp.PreviewTable(up.Filename, t)
}

// PreviewMaps runs already-parsed key/value rows through the same pipeline.
func (imp *Importer) PreviewMaps(sourceFile string, rows []map[string]string) (*Preview, error) {
	t, err := TableFromMaps(rows)
	if err != nil {
		return nil, err
	}
	return imp.PreviewTable(sourceFile, t)
}

// PreviewTable maps and validates a parsed table.
func (imp *Importer) PreviewTable(sourceFile string, t *Table) (*Preview, error) {
	if imp.maxRows > 0 && len(t.Rows) > imp.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(t.Rows), imp.maxRows)
	}

	mapping := MapColumns(t.Header)
	if len(mapping.Unmapped) > 0 {
		logger.Warn("import: unmapped headers ignored",
			"source_file", sourceFile,
			"headers", strings.Join(mapping.Unmapped, "|"))
	}

	p := &Preview{
		SourceFile:      sourceFile,
		Records:         make([]domain.ImportRow, 0, len(t.Rows)),
		UnmappedHeaders: mapping.Unmapped,
	}
	for _, row := range t.Rows {
		rec := imp.normalizeRow(row, mapping)
		if rec.IsValid {
			p.ValidCount++
		} else {
			p.InvalidCount++
		}
		p.Records = append(p.Records, rec)
	}
	return p, nil
}

// Commit re-validates rows and submits the valid subset in one call. Rows
// without a file row number are numbered by position.
// Rejections from either stage are collected in the result; nothing is retried.
// A failure of the whole upsert call marks every submitted row failed and is
// also returned.
func (imp *Importer) Commit(ctx context.Context, sourceFile string, records []domain.ImportRow) (*domain.ImportBatchResult, error) {
	start := imp.now()
	res := &domain.ImportBatchResult{
		SourceFile: sourceFile,
		StartedAt:  start,
		RowErrors:  []domain.RowError{},
	}

	submit := make([]domain.ImportRecord, 0, len(records))
	rows := make([]int, 0, len(records))
	for i, r := range records {
		rec := r.ImportRecord
		row := r.Row
		if row <= 0 {
			row = i + 1
		}
		reasons := validateRecord(&rec)
		if len(reasons) > 0 || !rec.Specialty.Valid() {
			if !rec.Specialty.Valid() {
				reasons = append(reasons, fmt.Sprintf("Unknown specialty %q", rec.Specialty))
			}
			res.Invalid++
			for _, reason := range reasons {
				res.RowErrors = append(res.RowErrors, domain.RowError{Row: row, Reason: reason, Stage: domain.StageValidation})
			}
			continue
		}
		if rec.Location == "" {
			rec.Location = imp.placeholder
		}
		rec.IsValid = true
		submit = append(submit, rec)
		rows = append(rows, row)
	}
	res.Valid = len(submit)

	if len(submit) == 0 {
		res.Duration = imp.now().Sub(start)
		return res, nil
	}
	if imp.upserter == nil {
		return nil, errors.New("commit import: no upserter configured")
	}

	outcomes, err := imp.upserter.BulkUpsert(ctx, submit)
	if err != nil {
		res.Failed = len(submit)
		for _, row := range rows {
			res.RowErrors = append(res.RowErrors, domain.RowError{Row: row, Reason: err.Error(), Stage: domain.StagePersistence})
		}
		res.Duration = imp.now().Sub(start)
		return res, fmt.Errorf("bulk upsert: %w", err)
	}

	reported := make([]bool, len(submit))
	for _, o := range outcomes {
		if o.Index < 0 || o.Index >= len(submit) || reported[o.Index] {
			continue
		}
		reported[o.Index] = true
		if o.Err != nil {
			res.Failed++
			res.RowErrors = append(res.RowErrors, domain.RowError{Row: rows[o.Index], Reason: o.Err.Error(), Stage: domain.StagePersistence})
			continue
		}
		res.Succeeded++
	}
	for i, ok := range reported {
		if !ok {
			res.Failed++
			res.RowErrors = append(res.RowErrors, domain.RowError{Row: rows[i], Reason: "no result reported for row", Stage: domain.StagePersistence})
		}
	}

	res.Duration = imp.now().Sub(start)
	logger.Info("import: batch committed",
		"source_file", sourceFile,
		"valid", res.Valid,
		"invalid", res.Invalid,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}
