package datanorm

import (
	"fmt"
	"strings"
)

// Field is a target column of the import schema.
type Field string

const (
	FieldBusinessName Field = "business_name"
	FieldTradingName  Field = "trading_name"
	FieldSpecialty    Field = "specialty"
	FieldPhone        Field = "phone"
	FieldEmail        Field = "email"
	FieldLocation     Field = "location"
	FieldPostalCode   Field = "postal_code"
	FieldWebsite      Field = "website"
	FieldDescription  Field = "description"
)

type fieldSynonyms struct {
	Field     Field
	Spellings []string
}

// headerSynonyms lists accepted header spellings per field, in lookup order.
// Several entries are corruptions seen in real exports and must stay.
var headerSynonyms = []fieldSynonyms{
	{FieldBusinessName, []string{
		"Business Name", "business_name", "Company Name", "Company", "Business",
		"Name", "Organisation", "Organization", "Firm", "Trader", "Contractor Name",
		"Compnay Name", "Busines Name", "ï»¿Business Name",
	}},
	{FieldTradingName, []string{
		"Trading Name", "trading_name", "Trading As", "T/A", "DBA",
		"Doing Business As", "Trade Name", "Brand",
	}},
	{FieldSpecialty, []string{
		"Specialty", "Speciality", "Specialism", "Category", "Trade", "Service",
		"Services", "Type", "Business Type", "Sector", "Industry", "Specality",
	}},
	{FieldPhone, []string{
		"Phone", "Telephone", "Tel", "Tel No", "Phone Number", "Mobile", "Cell",
		"Landline", "Contact Number", "Phone Numebr", "Telephone Number",
	}},
	{FieldEmail, []string{
		"Email", "E-mail", "E_Mail", "Mail", "Email Address", "Contact Email", "Emial",
	}},
	{FieldLocation, []string{
		"Location", "Town", "City", "Town/City", "Area", "Address", "Region",
		"County", "Locality", "Service Area",
	}},
	{FieldPostalCode, []string{
		"Postcode", "Post Code", "Postal Code", "Zip", "Zip Code",
	}},
	{FieldWebsite, []string{
		"Website", "Web", "URL", "Web Address", "Site", "Homepage", "Webiste",
	}},
	{FieldDescription, []string{
		"Description", "About", "Notes", "Summary", "Bio", "Details",
	}},
}

// headerIndex is headerSynonyms keyed by normalized spelling.
var headerIndex = buildHeaderIndex(headerSynonyms)

func buildHeaderIndex(table []fieldSynonyms) map[string]Field {
	idx := make(map[string]Field)
	for _, fs := range table {
		for _, s := range fs.Spellings {
			key := NormalizeHeader(s)
			if key == "" {
				panic(fmt.Sprintf("datanorm: synonym %q for %s normalizes to empty", s, fs.Field))
			}
			if prev, ok := idx[key]; ok && prev != fs.Field {
				panic(fmt.Sprintf("datanorm: synonym %q claimed by both %s and %s", s, prev, fs.Field))
			}
			idx[key] = fs.Field
		}
	}
	return idx
}

// NormalizeHeader lowercases h and drops everything outside [a-z0-9].
func NormalizeHeader(h string) string {
	h = strings.ToLower(h)
	var b strings.Builder
	b.Grow(len(h))
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// MapHeader resolves a raw header to its target field. Only exact matches
// after normalization count.
func MapHeader(h string) (Field, bool) {
	f, ok := headerIndex[NormalizeHeader(h)]
	return f, ok
}

// ColumnMapping holds the resolved mapping from column indices to fields.
type ColumnMapping struct {
	FieldMap map[int]Field // column index -> field
	Unmapped []string      // raw headers that were dropped
	RawNames []string

	byField map[Field]int
}

// MapColumns maps a header row. When two columns resolve to the same field the
// first one wins and the later ones are reported as unmapped.
func MapColumns(header []string) *ColumnMapping {
	m := &ColumnMapping{
		FieldMap: make(map[int]Field, len(header)),
		Unmapped: []string{},
		RawNames: header,
		byField:  make(map[Field]int, len(header)),
	}

	for i, h := range header {
		field, ok := MapHeader(h)
		if !ok {
			if strings.TrimSpace(h) != "" {
				m.Unmapped = append(m.Unmapped, strings.TrimSpace(h))
			}
			continue
		}
		if _, taken := m.byField[field]; taken {
			m.Unmapped = append(m.Unmapped, strings.TrimSpace(h))
			continue
		}
		m.FieldMap[i] = field
		m.byField[field] = i
	}
	return m
}

// Index returns the column holding field, or -1.
func (m *ColumnMapping) Index(field Field) int {
	if i, ok := m.byField[field]; ok {
		return i
	}
	return -1
}

// Has reports whether any column mapped to field.
func (m *ColumnMapping) Has(field Field) bool {
	_, ok := m.byField[field]
	return ok
}
