package datanorm

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

const utf8BOM = "\uFEFF"

type fileKind int

const (
	kindUnknown fileKind = iota
	kindDelimited
	kindXLSX
)

var extensionKinds = map[string]fileKind{
	".csv":  kindDelimited,
	".txt":  kindDelimited,
	".xlsx": kindXLSX,
}

var contentTypeKinds = map[string]fileKind{
	"text/csv":                 kindDelimited,
	"text/plain":               kindDelimited,
	"application/csv":          kindDelimited,
	"application/vnd.ms-excel": kindDelimited,

	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": kindXLSX,
}

// detectKind prefers a known file extension and falls back to the content type.
func detectKind(filename, contentType string) fileKind {
	if k, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		return k
	}
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			if k, ok := contentTypeKinds[strings.ToLower(mt)]; ok {
				return k
			}
		}
	}
	return kindUnknown
}

// ParseUpload parses an uploaded file into a Table. Unsupported types and
// files without a header row are rejected before any row is looked at.
func ParseUpload(filename, contentType string, r io.Reader) (*Table, error) {
	switch detectKind(filename, contentType) {
	case kindDelimited:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return ParseDelimited(string(data))
	case kindXLSX:
		return ParseXLSX(r)
	default:
		return nil, ErrUnsupportedFileType
	}
}

// ParseDelimited splits text into rows on newlines and cells on commas.
// Quoting is not supported: a comma inside a value shifts later columns.
func ParseDelimited(text string) (*Table, error) {
	text = strings.TrimPrefix(text, utf8BOM)
	lines := strings.Split(text, "\n")

	t := &Table{}
	headerAt := -1
	for i, line := range lines {
		cells := strings.Split(strings.TrimRight(line, "\r"), ",")
		if headerAt < 0 {
			if blankCells(cells) {
				continue
			}
			t.Header = cells
			headerAt = i
			continue
		}
		if blankCells(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i - headerAt, Cells: cells})
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}
	return t, nil
}

// ParseXLSX reads the first sheet of a workbook. The first row is the header.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w: %v", sheets[0], ErrUnreadableFile, err)
	}

	t := &Table{}
	headerAt := -1
	for i, cells := range rows {
		if headerAt < 0 {
			if blankCells(cells) {
				continue
			}
			if len(cells) > 0 {
				cells[0] = strings.TrimPrefix(cells[0], utf8BOM)
			}
			t.Header = cells
			headerAt = i
			continue
		}
		if blankCells(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i - headerAt, Cells: cells})
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}
	return t, nil
}

// TableFromMaps builds a Table from already-parsed key/value rows. Keys are
// ordered alphabetically so duplicate-field resolution is deterministic.
func TableFromMaps(rows []map[string]string) (*Table, error) {
	seen := make(map[string]bool)
	var header []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	if len(header) == 0 {
		return nil, ErrEmptyFile
	}
	sort.Strings(header)

	t := &Table{Header: header}
	for i, r := range rows {
		cells := make([]string, len(header))
		for j, h := range header {
			cells[j] = r[h]
		}
		if blankCells(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i + 1, Cells: cells})
	}
	return t, nil
}

func blankCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
