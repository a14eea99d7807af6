package datanorm

import (
	"regexp"
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

const (
	reasonNameRequired = "Business name is required"
	reasonInvalidEmail = "Invalid email format"
)

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateRecord returns operator-facing reasons why rec cannot be imported.
func validateRecord(rec *domain.ImportRecord) []string {
	var reasons []string
	if strings.TrimSpace(rec.BusinessName) == "" {
		reasons = append(reasons, reasonNameRequired)
	}
	if rec.Email != "" && !isValidEmail(rec.Email) {
		reasons = append(reasons, reasonInvalidEmail)
	}
	return reasons
}

func isValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailShape.MatchString(email)
}
