// Package review defines the code-review domain: categories, review records,
// language detection, prompt templates, and confidence scoring.
package review

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Category selects the reviewer persona for a submission.
type Category string

const (
	CategoryQuick         Category = "quick"
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryDocumentation Category = "documentation"
)

// ParseCategory normalizes a free-text category. Unrecognized or empty
// values fall back to quick rather than erroring.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategorySecurity:
		return CategorySecurity
	case CategoryPerformance:
		return CategoryPerformance
	case CategoryDocumentation:
		return CategoryDocumentation
	default:
		return CategoryQuick
	}
}

// MaxStoredCodeLen bounds the code text persisted with a Review.
const MaxStoredCodeLen = 2000

// Review is one completed analysis. Immutable after creation.
type Review struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Category   Category  `json:"category"`
	Language   string    `json:"language"`
	Result     string    `json:"result"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// New constructs a Review, truncating code to MaxStoredCodeLen.
func New(code string, category Category, language, result string, confidence int) Review {
	return Review{
		ID:         uuid.NewString(),
		Code:       Truncate(code, MaxStoredCodeLen),
		Category:   category,
		Language:   language,
		Result:     result,
		Confidence: confidence,
		Timestamp:  time.Now().UTC(),
	}
}

// Truncate caps s at max bytes without splitting a rune, so truncated
// previews stay valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
