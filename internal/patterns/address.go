package patterns

import (
	"strings"

	"github.com/lockboxhq/lockbox/internal/model"
)

// suffixes maps spelled-out street suffixes and directionals to the
// USPS-style short forms so "123 Main Street" and "123 Main St" share a
// grouping key.
var suffixes = map[string]string{
	"street":    "st",
	"avenue":    "ave",
	"av":        "ave",
	"road":      "rd",
	"drive":     "dr",
	"lane":      "ln",
	"boulevard": "blvd",
	"court":     "ct",
	"place":     "pl",
	"circle":    "cir",
	"terrace":   "ter",
	"parkway":   "pkwy",
	"highway":   "hwy",
	"trail":     "trl",
	"square":    "sq",
	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
}

// unitMarkers introduce an apartment or suite designator. The marker and
// the token after it are dropped from the grouping key.
var unitMarkers = map[string]bool{
	"apt":       true,
	"apartment": true,
	"unit":      true,
	"ste":       true,
	"suite":     true,
	"no":        true,
}

// NormalizeAddress canonicalizes an already-extracted address string for
// use as a grouping key: lowercase, punctuation stripped, unit
// designators dropped, suffixes and directionals shortened. It performs
// no extraction; garbage in, garbage key out.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(addr)
	s = strings.ReplaceAll(s, "#", " unit ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if unitMarkers[f] {
			i++ // skip the unit number too
			continue
		}
		if short, ok := suffixes[f]; ok {
			f = short
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// PropertyAddress picks the best-known property address for a message:
// the LLM's extraction when present, otherwise the first address the
// pattern matcher found. Empty when neither stage produced one.
func PropertyAddress(am model.AnalyzedMessage) string {
	if am.LLM != nil && am.LLM.PropertyAddress != "" {
		return am.LLM.PropertyAddress
	}
	if am.Pattern != nil {
		for _, a := range am.Pattern.Addresses {
			if a != "" {
				return a
			}
		}
	}
	return ""
}

// GroupByNormalizedAddress buckets messages by normalized property
// address, preserving input order within each bucket. Messages with no
// known address are left out.
func GroupByNormalizedAddress(msgs []model.AnalyzedMessage) map[string][]model.AnalyzedMessage {
	groups := make(map[string][]model.AnalyzedMessage)
	for _, am := range msgs {
		key := NormalizeAddress(PropertyAddress(am))
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], am)
	}
	return groups
}
