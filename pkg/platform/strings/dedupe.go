// Package strings provides string slice utilities.
package strings

// Dedupe removes duplicates and empty strings from values using exact
// comparison. First-seen order is preserved and the input is not modified.
//
// Example:
//
//	Dedupe([]string{"a@x.io", "", "b@x.io", "a@x.io", "A@x.io"})
//	// Returns: []string{"a@x.io", "b@x.io", "A@x.io"}
func Dedupe(values []string) []string {
	result := make([]string, 0, len(values))
	if len(values) == 0 {
		return result
	}

	seen := make(map[string]struct{}, len(values))
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
