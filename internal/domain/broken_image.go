package domain

import "time"

// ReportedBySystem marks reports raised automatically on client load failures.
const ReportedBySystem = "system"

// BrokenImage records a URL known to fail to load. A nil Category means the
// URL is excluded for every category.
type BrokenImage struct {
	URL          string    `json:"url" db:"url"`
	Category     *Category `json:"category,omitempty" db:"category"`
	ReportedBy   string    `json:"reported_by" db:"reported_by"`
	ErrorMessage string    `json:"error_message" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
