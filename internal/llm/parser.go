package llm

import "strings"

// CleanJSONResponse strips the decoration models wrap around JSON
// despite instructions: markdown code fences and prose before or after
// the object. It returns its best guess at the bare JSON document;
// callers still validate by decoding.
func CleanJSONResponse(content string) string {
	s := strings.TrimSpace(content)

	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}

	return s
}
