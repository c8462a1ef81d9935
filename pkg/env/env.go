package env

import (
	"os"
	"strings"
)

// Choice returns the value of key when it is one of allowed (compared
// case-insensitively, returned lowercased), and fallback otherwise. It
// serves switches read before the typed config is loaded.
func Choice(key, fallback string, allowed ...string) string {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	for _, candidate := range allowed {
		if val == candidate {
			return val
		}
	}
	return fallback
}
