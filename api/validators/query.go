package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
)

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryContentType returns nil when the parameter is absent.
func ParseQueryContentType(r *http.Request, key string) (*enums.ContentType, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	ct, err := enums.ParseContentType(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid content type").WithDetails(map[string]any{"field": key})
	}
	return &ct, nil
}

// ParseQueryDraftStatus returns nil when the parameter is absent.
func ParseQueryDraftStatus(r *http.Request, key string) (*enums.DraftStatus, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	status, err := enums.ParseDraftStatus(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid draft status").WithDetails(map[string]any{"field": key})
	}
	return &status, nil
}

// ParseQueryString returns a trimmed, bounded value or nil when absent.
func ParseQueryString(r *http.Request, key string, maxLen int) *string {
	value := SanitizeString(r.URL.Query().Get(key), maxLen)
	if value == "" {
		return nil
	}
	return &value
}
