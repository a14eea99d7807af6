package datanorm

import "errors"

var (
	// ErrUnsupportedFileType is returned when an upload is neither delimited text nor XLSX.
	ErrUnsupportedFileType = errors.New("unsupported file type: upload a .csv or .xlsx file")
	// ErrEmptyFile is returned when an upload has no header row.
	ErrEmptyFile = errors.New("file is empty or has no header row")
	// ErrUnreadableFile is returned when an upload claims a known type but cannot be parsed.
	ErrUnreadableFile = errors.New("file could not be read")
)
