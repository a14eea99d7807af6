package datanorm

import (
	"strings"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/domain"
)

type categoryRule struct {
	Category domain.Category
	Keywords []string
}

// primaryRules are checked in order; the first rule with a matching keyword wins.
// "general building contractor" must land on Building, so the building rule
// sits ahead of the handyman rule.
var primaryRules = []categoryRule{
	{domain.CategoryElectrical, []string{"electric"}},
	{domain.CategoryPlumbing, []string{"plumb"}},
	{domain.CategoryRoofing, []string{"roof"}},
	{domain.CategoryBuilding, []string{"build", "construct", "contractor"}},
	{domain.CategoryHomeRepair, []string{"repair", "fix", "maint"}},
	{domain.CategoryGardening, []string{"garden", "landscape", "lawn"}},
	{domain.CategoryHandyman, []string{"handy", "general", "odd job"}},
}

// extendedRules only run when no primary rule matched. "construct" repeats the
// primary building keyword and is kept so both lists stay in sync with imports
// that were classified before.
var extendedRules = []categoryRule{
	{domain.CategoryBuilding, []string{
		"renovat", "carpent", "extension", "brick", "joiner",
		"plaster", "loft", "conversion", "construct",
	}},
}

// Classifier maps free-text trade descriptions onto the category enumeration.
type Classifier struct {
	rules []categoryRule
}

func NewClassifier() *Classifier {
	rules := make([]categoryRule, 0, len(primaryRules)+len(extendedRules))
	rules = append(rules, primaryRules...)
	rules = append(rules, extendedRules...)
	return &Classifier{rules: rules}
}

// Classify returns the category for text, or the default category when no
// keyword matches.
func (c *Classifier) Classify(text string) domain.Category {
	return classify(c.rules, text)
}

func classify(rules []categoryRule, text string) domain.Category {
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return domain.DefaultCategory
	}
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				return rule.Category
			}
		}
	}
	return domain.DefaultCategory
}
