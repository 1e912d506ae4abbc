// Package sanitize masks sensitive substrings in message content before it
// crosses a trust boundary (any outbound provider call). Masking is
// deterministic, does no I/O, and is idempotent: the replacement token
// contains no digits, so no pattern can re-fire on already-sanitized text.
// Unknown patterns pass through unchanged.
package sanitize

import "regexp"

const masked = "[REDACTED]"

// labeledPatterns mask the value while preserving the label that precedes it,
// so "Account #: 00123456" becomes "Account #: [REDACTED]". Checked first:
// the label gives the long digit run its meaning.
var labeledPatterns = []*regexp.Regexp{
	// Account and routing numbers introduced by a label.
	regexp.MustCompile(`(?i)\b((?:account|acct|routing)\s*(?:number|num|no\.?|#)?\s*[:#]?\s*)(\d[\d -]{4,28}\d)`),
	// Unhyphenated SSNs introduced by a label.
	regexp.MustCompile(`(?i)\b((?:ssn|social security(?:\s+(?:number|no\.?|#))?)\s*[:#]?\s*)(\d{3}[ -]?\d{2}[ -]?\d{4})\b`),
}

// barePatterns match self-identifying secrets with no label required.
var barePatterns = []*regexp.Regexp{
	// Hyphenated SSNs (3-2-4). Phone numbers are 3-3-4 and never match.
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	// 16-digit card numbers, optionally grouped by spaces or dashes.
	regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`),
	// 15-digit American Express numbers (4-6-5 grouping).
	regexp.MustCompile(`\b3[47]\d{2}[ -]?\d{6}[ -]?\d{5}\b`),
}

// Sanitize replaces known sensitive patterns in text with [REDACTED].
func Sanitize(text string) string {
	for _, re := range labeledPatterns {
		text = re.ReplaceAllString(text, "${1}"+masked)
	}
	for _, re := range barePatterns {
		text = re.ReplaceAllString(text, masked)
	}
	return text
}

// SanitizeAll sanitizes every element of a list, returning a new slice.
// A nil input returns nil.
func SanitizeAll(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = Sanitize(item)
	}
	return out
}
