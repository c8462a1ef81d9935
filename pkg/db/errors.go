package db

import "strings"

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. When constraintName is provided (for example
// "drafts.client_id") the message must reference it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return true
}
