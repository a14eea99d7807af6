package datanorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

// normalizeRow turns one data row into a previewed record. Cells past the end
// of the header or the row are ignored.
func (imp *Importer) normalizeRow(row Row, mapping *ColumnMapping) domain.ImportRow {
	get := func(f Field) string {
		i := mapping.Index(f)
		if i < 0 || i >= len(row.Cells) {
			return ""
		}
		return strings.TrimSpace(row.Cells[i])
	}

	rec := domain.ImportRecord{
		BusinessName: collapseSpace(get(FieldBusinessName)),
		TradingName:  collapseSpace(get(FieldTradingName)),
		Specialty:    imp.classifier.Classify(get(FieldSpecialty)),
		Phone:        collapseSpace(get(FieldPhone)),
		Email:        normalizeEmail(get(FieldEmail)),
		Location:     normalizeLocation(get(FieldLocation)),
		PostalCode:   strings.ToUpper(collapseSpace(get(FieldPostalCode))),
		Description:  get(FieldDescription),
	}
	if rec.Location == "" {
		rec.Location = imp.placeholder
	}

	out := domain.ImportRow{Row: row.Number, Errors: []string{}, Warnings: []string{}}
	if raw := get(FieldWebsite); raw != "" {
		if site, ok := normalizeWebsite(raw); ok {
			rec.Website = site
		} else {
			out.Warnings = append(out.Warnings, "Website "+raw+" is not a valid URL and was dropped")
		}
	}

	out.Errors = append(out.Errors, validateRecord(&rec)...)
	rec.IsValid = len(out.Errors) == 0
	out.ImportRecord = rec
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	return strings.Trim(email, "\"'<>")
}

var titleCaser = cases.Title(language.English)

// normalizeLocation title-cases places typed entirely in one case and leaves
// mixed-case input alone.
func normalizeLocation(raw string) string {
	s := collapseSpace(raw)
	if s == "" {
		return ""
	}
	if s == strings.ToLower(s) || s == strings.ToUpper(s) {
		return titleCaser.String(s)
	}
	return s
}

// normalizeWebsite adds https:// when no scheme is present and reports
// whether the result is a usable absolute URL.
func normalizeWebsite(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(s, "://") {
			return "", false
		}
		s = "https://" + strings.TrimPrefix(s, "//")
	}
	if strings.ContainsAny(s, " \t") || !domain.IsAbsoluteURL(s) {
		return "", false
	}
	return s, true
}
