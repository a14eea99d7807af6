package brokenimage

import "errors"

// Sentinel errors for the broken image service layer.
var (
	ErrInvalidURL      = errors.New("broken image url must be an absolute http(s) url")
	ErrInvalidCategory = errors.New("unknown category")
)
