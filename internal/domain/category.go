package domain

import "strings"

// Category is the closed trade classification of a listing.
type Category string

const (
	CategoryElectrical   Category = "Electrical"
	CategoryPlumbing     Category = "Plumbing"
	CategoryRoofing      Category = "Roofing"
	CategoryBuilding     Category = "Building"
	CategoryHomeRepair   Category = "Home Repair"
	CategoryGardening    Category = "Gardening"
	CategoryConstruction Category = "Construction"
	CategoryHandyman     Category = "Handyman"
)

// DefaultCategory is used whenever input cannot be classified.
const DefaultCategory = CategoryHandyman

var allCategories = []Category{
	CategoryElectrical,
	CategoryPlumbing,
	CategoryRoofing,
	CategoryBuilding,
	CategoryHomeRepair,
	CategoryGardening,
	CategoryConstruction,
	CategoryHandyman,
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// ParseCategory matches s against the category labels, ignoring case and
// surrounding whitespace. It does not classify free text.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range allCategories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Slug returns the URL/key-safe form of the category, e.g. "home-repair".
func (c Category) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(c)), " ", "-")
}
