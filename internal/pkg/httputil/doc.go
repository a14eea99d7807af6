// Package httputil holds the JSON response and request decoding helpers used
// by the directory API handlers. Error bodies use ErrorResponse.
package httputil
