package platform

import "regexp"

// entityIDPattern matches the platform's typed entity identifiers.
var entityIDPattern = regexp.MustCompile(`\bsyn\d+\b`)

// ScrapeEntityID extracts the first entity identifier token from
// free-text CLI output. The second return value is false when the
// output contains no identifier.
func ScrapeEntityID(output string) (string, bool) {
	match := entityIDPattern.FindString(output)
	if match == "" {
		return "", false
	}
	return match, true
}
