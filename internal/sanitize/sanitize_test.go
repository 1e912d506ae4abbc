package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "hyphenated SSN",
			input: "My SSN is 123-45-6789.",
			want:  "My SSN is [REDACTED].",
		},
		{
			name:  "labeled SSN without hyphens keeps the label",
			input: "SSN: 123456789",
			want:  "SSN: [REDACTED]",
		},
		{
			name:  "labeled social security number with spaces",
			input: "Social Security Number: 123 45 6789",
			want:  "Social Security Number: [REDACTED]",
		},
		{
			name:  "card number with spaces",
			input: "Card 4111 1111 1111 1111 on file",
			want:  "Card [REDACTED] on file",
		},
		{
			name:  "card number with dashes",
			input: "use 4111-1111-1111-1111 please",
			want:  "use [REDACTED] please",
		},
		{
			name:  "bare 16 digit run",
			input: "wired from 4532015112830366 yesterday",
			want:  "wired from [REDACTED] yesterday",
		},
		{
			name:  "amex number",
			input: "amex 3782 822463 10005",
			want:  "amex [REDACTED]",
		},
		{
			name:  "labeled account number keeps the label",
			input: "Account number: 0012345678",
			want:  "Account number: [REDACTED]",
		},
		{
			name:  "acct with hash separator",
			input: "Acct #4421-9955-0142",
			want:  "Acct #[REDACTED]",
		},
		{
			name:  "routing number",
			input: "routing: 021000021 for the wire",
			want:  "routing: [REDACTED] for the wire",
		},
		{
			name:  "phone numbers pass through",
			input: "Call me at (555) 123-4567",
			want:  "Call me at (555) 123-4567",
		},
		{
			name:  "dates and amounts pass through",
			input: "Offer of $450,000 on 123 Main St, closing 2026-09-15",
			want:  "Offer of $450,000 on 123 Main St, closing 2026-09-15",
		},
		{
			name:  "plain text untouched",
			input: "Looking forward to the inspection tomorrow!",
			want:  "Looking forward to the inspection tomorrow!",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)

			// Sanitizing sanitized text must be a no-op.
			assert.Equal(t, got, Sanitize(got), "sanitize is not idempotent")
		})
	}
}

func TestSanitizeAll(t *testing.T) {
	assert.Nil(t, SanitizeAll(nil))

	got := SanitizeAll([]string{"SSN: 123456789", "clean text"})
	assert.Equal(t, []string{"SSN: [REDACTED]", "clean text"}, got)
}
