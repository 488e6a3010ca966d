package content

import "strings"

// TokenCount estimates the number of model tokens in s as ceil(words * 1.3), where words are runs of
// non-whitespace. It is a display hint only.
func TokenCount(s string) int {
	words := len(strings.Fields(s))
	// Integer form of ceil(words*1.3), which avoids float drift (10*1.3 is 13.000000000000002).
	return (words*13 + 9) / 10
}
