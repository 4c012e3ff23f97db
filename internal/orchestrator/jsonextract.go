package orchestrator

import "strings"

// extractJSON recovers a JSON payload from an LLM completion that may still
// be wrapped in markdown code fences despite being instructed not to. It
// tries, in order: a fenced ```json block, a bare fenced block, then the
// widest brace-or-bracket span in the text.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if fenced, ok := extractFenced(text, "```json"); ok {
		return fenced
	}
	if fenced, ok := extractFenced(text, "```"); ok {
		return fenced
	}

	if span := widestSpan(text, '{', '}'); span != "" {
		return span
	}
	if span := widestSpan(text, '[', ']'); span != "" {
		return span
	}
	return text
}

func extractFenced(text, marker string) (string, bool) {
	start := strings.Index(text, marker)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(marker):]
	end := strings.Index(rest, "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func widestSpan(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
