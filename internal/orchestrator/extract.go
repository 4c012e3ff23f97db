package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/usercommon/scrapeapi/internal/model"
)

const maxExtractedChars = 50000

// mdConverter mirrors service-llm-describer/internals/worker.NewProcessor's
// converter construction: default domain, escape mode on, no custom rules.
var mdConverter = md.NewConverter("", true, nil)

// extractText flattens an execution's records into a bounded text block for
// the shaping prompt. Field values that look like HTML fragments are run
// through the markdown converter so the LLM sees readable text rather than
// tag soup; everything else is rendered as-is.
func extractText(exec model.ExecutionResult) string {
	var sb strings.Builder
	fields := sortedFieldNames(exec.Records)

	for i, record := range exec.Records {
		sb.WriteString(fmt.Sprintf("Record %d:\n", i+1))
		for _, field := range fields {
			v, ok := record[field]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("  %s: %s\n", field, renderValue(v)))
		}
		sb.WriteString("\n")
		if sb.Len() > maxExtractedChars {
			break
		}
	}

	out := sb.String()
	if len(out) > maxExtractedChars {
		out = out[:maxExtractedChars] + "\n... [truncated]"
	}
	return out
}

func renderValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	if looksLikeHTML(s) {
		converted, err := mdConverter.ConvertString(s)
		if err == nil && strings.TrimSpace(converted) != "" {
			return strings.TrimSpace(converted)
		}
	}
	return s
}

func looksLikeHTML(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "<") && strings.Contains(trimmed, ">")
}

func sortedFieldNames(records []map[string]any) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}
