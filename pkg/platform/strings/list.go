// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// SplitList flattens comma separated entries, trims whitespace and drops
// empty and repeated values. Order of first occurrence is preserved.
//
// Example:
//
//	SplitList([]string{"k1:9092, k2:9092", "k1:9092", " "})
//	// Returns: []string{"k1:9092", "k2:9092"}
func SplitList(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if _, ok := seen[trimmed]; !ok {
				seen[trimmed] = struct{}{}
				result = append(result, trimmed)
			}
		}
	}
	return result
}
