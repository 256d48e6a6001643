package enums

import "fmt"

// ConfigScope orders the stacked-configuration layers from least to most
// specific. A more specific scope's non-null fields win during resolution.
type ConfigScope string

const (
	ScopeGlobal ConfigScope = "global"
	ScopeSite   ConfigScope = "site"
	ScopeOrg    ConfigScope = "org"
	ScopeCourse ConfigScope = "course"
)

// configScopeRank orders scopes; higher rank is more specific.
var configScopeRank = map[ConfigScope]int{
	ScopeGlobal: 0,
	ScopeSite:   1,
	ScopeOrg:    2,
	ScopeCourse: 3,
}

// ConfigScopesNarrowing lists every scope from broadest to narrowest.
var ConfigScopesNarrowing = []ConfigScope{ScopeGlobal, ScopeSite, ScopeOrg, ScopeCourse}

// String implements fmt.Stringer.
func (s ConfigScope) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ConfigScope.
func (s ConfigScope) IsValid() bool {
	_, ok := configScopeRank[s]
	return ok
}

// Rank returns the specificity rank used by the resolver fold.
func (s ConfigScope) Rank() int {
	return configScopeRank[s]
}

// NarrowerThan reports whether s is more specific than other.
func (s ConfigScope) NarrowerThan(other ConfigScope) bool {
	return s.Rank() > other.Rank()
}

// ParseConfigScope converts raw input into a ConfigScope.
func ParseConfigScope(value string) (ConfigScope, error) {
	scope := ConfigScope(value)
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid config scope %q", value)
	}
	return scope, nil
}
