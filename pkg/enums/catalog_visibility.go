package enums

import "fmt"

// CatalogVisibility controls where a course run may be advertised.
type CatalogVisibility string

const (
	CatalogVisibilityBoth  CatalogVisibility = "both"
	CatalogVisibilityAbout CatalogVisibility = "about"
	CatalogVisibilityNone  CatalogVisibility = "none"
)

var validCatalogVisibilities = []CatalogVisibility{
	CatalogVisibilityBoth,
	CatalogVisibilityAbout,
	CatalogVisibilityNone,
}

// String implements fmt.Stringer.
func (c CatalogVisibility) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CatalogVisibility.
func (c CatalogVisibility) IsValid() bool {
	for _, candidate := range validCatalogVisibilities {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCatalogVisibility converts raw input into a CatalogVisibility.
func ParseCatalogVisibility(value string) (CatalogVisibility, error) {
	for _, candidate := range validCatalogVisibilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid catalog visibility %q", value)
}
