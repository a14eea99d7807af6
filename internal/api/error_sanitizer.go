package api

import (
	"net/http"
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httputil"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/logger"
)

// Internal errors (SQL, S3 keys, upstream API messages) never reach API
// consumers. 5xx responses carry a fixed public message and the full error
// is logged.

// respondSafeError logs internalErr and sends publicMsg as the JSON error.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("api: request failed", "status", code, "message", publicMsg, "error", internalErr)
	}
	httputil.Error(w, code, publicMsg)
}

// safeErrorMessage maps internal errors to public-safe messages. 4xx errors
// describe operator input and pass through.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}

	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "query") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	case strings.Contains(errStr, "s3") ||
		strings.Contains(errStr, "bucket"):
		return "Image storage error"

	case strings.Contains(errStr, "places"):
		return "Places service error"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}
