package validators

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// Bounds describes an optional integer query parameter.
type Bounds struct {
	Default int
	Min     int
	Max     int
}

func fieldError(field, message string, extra map[string]any) *pkgerrors.Error {
	details := map[string]any{"field": field}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseUUID parses an id taken from the path or query string. The nil uuid
// is rejected.
func ParseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fieldError(field, "invalid "+field, nil)
	}
	return id, nil
}

// QueryInt reads key from the query string. Absent or blank values yield
// b.Default.
func QueryInt(r *http.Request, key string, b Bounds) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return b.Default, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, key+" must be an integer", nil)
	}
	if value < b.Min || value > b.Max {
		return 0, fieldError(key, key+" out of range", map[string]any{"min": b.Min, "max": b.Max})
	}
	return value, nil
}

// TrimText trims free text, drops control characters other than newlines,
// and caps the result at maxRunes (0 means uncapped).
func TrimText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
