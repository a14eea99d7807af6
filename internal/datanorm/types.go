package datanorm

import (
	"context"
	"io"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// Table is a parsed upload: a header row plus data rows in file order.
type Table struct {
	Header []string
	Rows   []Row
}

// Row is one non-blank data row. Number is the 1-based position of the row
// after the header, counting skipped blank lines so it matches the file.
type Row struct {
	Number int
	Cells  []string
}

// Upload is a file submitted by an operator.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Preview is what the operator reviews before confirming an import.
type Preview struct {
	SourceFile      string             `json:"source_file"`
	Records         []domain.ImportRow `json:"records"`
	ValidCount      int                `json:"valid_count"`
	InvalidCount    int                `json:"invalid_count"`
	UnmappedHeaders []string           `json:"unmapped_headers"`
}

// ValidRecords returns the confirmable subset of the preview.
func (p *Preview) ValidRecords() []domain.ImportRow {
	out := make([]domain.ImportRow, 0, p.ValidCount)
	for _, r := range p.Records {
		if r.IsValid {
			out = append(out, r)
		}
	}
	return out
}

// UpsertOutcome is the collaborator's verdict on one submitted record.
// Index refers to the position in the slice passed to BulkUpsert.
type UpsertOutcome struct {
	Index int
	ID    string
	Err   error
}

// Upserter persists validated import records. Implementations report per-row
// failures through UpsertOutcome and reserve the error return for failures of
// the whole call.
type Upserter interface {
	BulkUpsert(ctx context.Context, records []domain.ImportRecord) ([]UpsertOutcome, error)
}

// Config holds normalizer settings loaded from the import config section.
type Config struct {
	LocationPlaceholder string
	MaxRows             int
}

// DefaultLocationPlaceholder is used for rows without a location.
const DefaultLocationPlaceholder = "Location not specified"
