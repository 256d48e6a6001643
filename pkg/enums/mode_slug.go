package enums

import "fmt"

// ModeSlug identifies the enrollment track a learner is in for a course run.
type ModeSlug string

const (
	ModeAudit            ModeSlug = "audit"
	ModeHonor            ModeSlug = "honor"
	ModeVerified         ModeSlug = "verified"
	ModeProfessional     ModeSlug = "professional"
	ModeNoIDProfessional ModeSlug = "no-id-professional"
	ModeCredit           ModeSlug = "credit"
	ModeMasters          ModeSlug = "masters"
)

// DefaultModeSlug is applied when enrollment callers omit a mode.
const DefaultModeSlug = ModeAudit

var validModeSlugs = []ModeSlug{
	ModeAudit,
	ModeHonor,
	ModeVerified,
	ModeProfessional,
	ModeNoIDProfessional,
	ModeCredit,
	ModeMasters,
}

// nonExpiringModes never receive a duration-limit expiration.
var nonExpiringModes = map[ModeSlug]bool{
	ModeVerified:     true,
	ModeProfessional: true,
	ModeCredit:       true,
	ModeMasters:      true,
}

// verifiedLikeModes carry identity verification and full content access.
var verifiedLikeModes = map[ModeSlug]bool{
	ModeVerified:     true,
	ModeProfessional: true,
	ModeCredit:       true,
	ModeMasters:      true,
}

// String implements fmt.Stringer.
func (m ModeSlug) String() string {
	return string(m)
}

// IsValid reports whether the value is a known ModeSlug.
func (m ModeSlug) IsValid() bool {
	for _, candidate := range validModeSlugs {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsCredit reports whether the mode is the credit track.
func (m ModeSlug) IsCredit() bool {
	return m == ModeCredit
}

// IsNonExpiring reports whether duration limits are waived for the mode.
func (m ModeSlug) IsNonExpiring() bool {
	return nonExpiringModes[m]
}

// IsVerifiedLike reports whether the mode belongs to the verified family.
func (m ModeSlug) IsVerifiedLike() bool {
	return verifiedLikeModes[m]
}

// ParseModeSlug converts raw input into a ModeSlug.
func ParseModeSlug(value string) (ModeSlug, error) {
	for _, candidate := range validModeSlugs {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mode slug %q", value)
}
