package listing

import "errors"

// Sentinel errors for the listing service layer.
var (
	ErrNotFound        = errors.New("listing not found")
	ErrInvalidCategory = errors.New("unknown category")
	ErrInvalidImageURL = errors.New("image url must be an absolute http(s) url")
)
