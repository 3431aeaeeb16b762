package stringutil

import (
	"strings"

	"github.com/google/uuid"
)

// Empty returns true if any of the values is empty.
func Empty(vals ...string) bool {
	for _, val := range vals {
		if val == "" {
			return true
		}
	}

	return false
}

// UniqueName appends a uuid to prefix, dashes are swapped for underscores so it stays a valid BigQuery identifier.
func UniqueName(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "_")
}
