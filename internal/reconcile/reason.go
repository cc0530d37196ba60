package reconcile

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxReasonLen = 160

var reasonPolicy = bluemonday.StrictPolicy()

// reasonReplacer removes characters that would break evidence id framing or
// the CSV/log sinks downstream.
var reasonReplacer = strings.NewReplacer(
	"|", "/",
	",", ";",
	"\r", " ",
	"\n", " ",
	"\t", " ",
)

// sanitizeReason strips markup and separators from a reason code so it is
// safe to embed in evidence ids, exports and logs.
func sanitizeReason(s string) string {
	s = reasonPolicy.Sanitize(s)
	s = reasonReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return truncate(s, maxReasonLen)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
