// Package listing implements directory listing management.
//
// The service layer owns search normalization, slug generation, operator
// image uploads and the merge rules for third-party enrichment. It depends on
// the Repository interface defined in this package and should never import
// from api/.
//
// Repository implementations live in repository/postgres/.
package listing
