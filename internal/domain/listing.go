package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ImageSource names one of the places a listing image can come from.
type ImageSource string

const (
	SourceUploaded     ImageSource = "uploaded_images"
	SourceGooglePhotos ImageSource = "google_photos"
	SourceDefaultImage ImageSource = "default_specialty_image"
	SourceCategoryPool ImageSource = "category_pool"
	SourcePlaceholder  ImageSource = "placeholder"
)

// DefaultImagePriority is used when a listing carries no explicit priority.
var DefaultImagePriority = []ImageSource{SourceUploaded, SourceGooglePhotos, SourceDefaultImage}

// ParseImageSource accepts the three listing-level sources only.
func ParseImageSource(s string) (ImageSource, bool) {
	switch ImageSource(strings.TrimSpace(s)) {
	case SourceUploaded:
		return SourceUploaded, true
	case SourceGooglePhotos:
		return SourceGooglePhotos, true
	case SourceDefaultImage:
		return SourceDefaultImage, true
	}
	return "", false
}

// PhotoRef is a third-party photo reference attached to a listing.
type PhotoRef struct {
	URL         string `json:"url"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

// ListingRecord is a contractor/business entry in the directory.
// Optional fields are pointers; nil means absent.
type ListingRecord struct {
	ID           string   `json:"id" db:"id"`
	Slug         string   `json:"slug" db:"slug"`
	BusinessName string   `json:"business_name" db:"business_name"`
	TradingName  *string  `json:"trading_name,omitempty" db:"trading_name"`
	Category     Category `json:"specialty" db:"specialty"`
	Description  string   `json:"description" db:"description"`
	Location     string   `json:"location" db:"location"`
	PostalCode   *string  `json:"postal_code,omitempty" db:"postal_code"`

	Phone   *string `json:"phone,omitempty" db:"phone"`
	Email   *string `json:"email,omitempty" db:"email"`
	Website *string `json:"website,omitempty" db:"website"`

	Rating      *float64 `json:"rating,omitempty" db:"rating"`
	ReviewCount int      `json:"review_count" db:"review_count"`

	UploadedImages        []string      `json:"uploaded_images" db:"uploaded_images"`
	GooglePhotos          []PhotoRef    `json:"google_photos" db:"google_photos"`
	DefaultSpecialtyImage *string       `json:"default_specialty_image,omitempty" db:"default_specialty_image"`
	ImagePriority         []ImageSource `json:"image_priority,omitempty" db:"image_priority"`

	PlaceID    *string    `json:"place_id,omitempty" db:"place_id"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate checks the record invariants that must hold before persistence.
func (l *ListingRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(l.BusinessName) == "" {
		errs = append(errs, errors.New("business name is required"))
	}
	if !l.Category.Valid() {
		errs = append(errs, fmt.Errorf("unknown category %q", l.Category))
	}
	if l.Slug != "" && !slugPattern.MatchString(l.Slug) {
		errs = append(errs, fmt.Errorf("slug %q is not URL-safe", l.Slug))
	}
	if l.Website != nil && !IsAbsoluteURL(*l.Website) {
		errs = append(errs, fmt.Errorf("website %q is not an absolute URL", *l.Website))
	}
	if l.ReviewCount < 0 {
		errs = append(errs, errors.New("review count must not be negative"))
	}
	return errors.Join(errs...)
}

// IsAbsoluteURL reports whether s parses as an http(s) URL with a host.
func IsAbsoluteURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 80

// Slugify derives the URL slug for a business name. The result may be empty
// when the name has no ASCII letters or digits.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return slug
}

// StringPtr returns nil for blank strings and a pointer to the trimmed value otherwise.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
