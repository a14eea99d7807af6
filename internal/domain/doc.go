// Package domain holds the directory's shared value types: listings, the
// category enumeration, import records and batch results, and broken image
// entries.
//
// domain imports nothing from internal/. Methods here are pure helpers such as
// Category.Slug and ListingRecord.Validate; persistence and HTTP live in
// the packages that consume these types.
package domain
