// Package brokenimage implements the registry of image URLs known to fail.
//
// Reports flow in from client load failures (reported_by "system") and from
// operators. A URL is excluded for the category it was reported under, or for
// every category when reported without one. Re-reporting is a no-op.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package brokenimage
