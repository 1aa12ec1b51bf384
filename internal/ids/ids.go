package ids

import (
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a sortable identifier used for background job ids.
func New() string {
	return ksuid.New().String()
}

// Short returns the first 12 hex characters of a random UUID, used for opaque object keys.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Valid reports whether s parses as a job id produced by New.
func Valid(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}
