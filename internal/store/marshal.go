package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/touchdelay/internal/ir"
)

// timeLayout stores timestamps as UTC RFC 3339 text. Lexical order matches
// chronological order as long as every value has the same precision, so
// times are truncated to microseconds before formatting.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// formatTime converts a timestamp to its stored TEXT form.
func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(timeLayout)
}

// parseTime parses a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// marshalStrings converts a string list to canonical JSON TEXT for storage.
func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

// unmarshalStrings parses a JSON string list.
func unmarshalStrings(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// quoteIdent quotes an SQL identifier. Table and column names come from
// schema files, never from user input, but may still be reserved words.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
