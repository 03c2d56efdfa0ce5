package common

import "strconv"

// AtoiDefault parses value as an integer, returning def for empty or
// malformed input. Query-parameter parsing never needs the error.
func AtoiDefault(value string, def int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return def
}
