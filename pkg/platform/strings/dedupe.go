// Package strings provides string manipulation utilities.
package strings

// Dedupe removes duplicates and empty strings from a slice without altering
// the remaining values. First-seen order is preserved.
//
// Example:
//
//	Dedupe([]string{"S1234567A", "E7654321", "S1234567A", ""})
//	// Returns: []string{"S1234567A", "E7654321"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}
