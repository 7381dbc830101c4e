package llm

import "strings"

// ExtractJSON pulls a JSON object or array out of a model reply. Models wrap
// payloads in markdown fences or prose; this walks through the common shapes:
// a fenced ```json block, then the first '{' or '[' trimmed to its matching
// close. Returns "" when no JSON-looking span is found.
func ExtractJSON(text string) string {
	if text == "" {
		return ""
	}
	if fenced := extractFenced(text); fenced != "" {
		if span := trimToBalanced(fenced); span != "" {
			return span
		}
	}
	return trimToBalanced(text)
}

func extractFenced(text string) string {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(text, marker)
		if start < 0 {
			continue
		}
		rest := text[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			return strings.TrimSpace(rest)
		}
		return strings.TrimSpace(rest[:end])
	}
	return ""
}

// trimToBalanced finds the first '{' or '[' and returns the substring up to
// the matching close bracket, tracking strings and escapes so braces inside
// quoted values do not end the span early.
func trimToBalanced(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
