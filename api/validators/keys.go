package validators

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

// CourseKeyParam reads and parses an opaque course key route parameter.
// Clients may percent-encode the key, so the raw value is unescaped first.
func CourseKeyParam(r *http.Request, name string) (coursekey.CourseKey, error) {
	raw, err := unescapeParam(r, name)
	if err != nil {
		return coursekey.CourseKey{}, err
	}
	key, err := coursekey.Parse(raw)
	if err != nil {
		return coursekey.CourseKey{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid course key").WithDetails(map[string]any{"field": name})
	}
	return key, nil
}

// UsageKeyParam reads and parses a block usage key route parameter.
func UsageKeyParam(r *http.Request, name string) (coursekey.UsageKey, error) {
	raw, err := unescapeParam(r, name)
	if err != nil {
		return coursekey.UsageKey{}, err
	}
	key, err := coursekey.ParseUsage(raw)
	if err != nil {
		return coursekey.UsageKey{}, pkgerrors.Wrap(pkgerrors.CodeInvalidKey, err, "invalid usage key").WithDetails(map[string]any{"field": name})
	}
	return key, nil
}

func unescapeParam(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "route parameter is required").WithDetails(map[string]any{"field": name})
	}
	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed route parameter").WithDetails(map[string]any{"field": name})
	}
	return unescaped, nil
}
