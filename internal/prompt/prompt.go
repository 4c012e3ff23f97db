// Package prompt builds the system/user messages sent to the LLM for the
// two orchestration steps: plan generation and response shaping. Message
// construction is pure string assembly, grounded on the composer package's
// section-builder style (kalambet-tbyd's internal/composer/prompt.go).
package prompt

import (
	"fmt"
	"strings"

	"github.com/usercommon/scrapeapi/internal/llmclient"
	"github.com/usercommon/scrapeapi/internal/model"
)

const planSystemPrompt = `You are a web-scraping planner. Given a natural-language description of ` +
	`data to collect and a set of target URLs, you produce a single JSON scraper plan — never ` +
	`prose, never markdown fences, never executable code.

The plan is a JSON object with this shape:

  {
    "record_selector": "<CSS selector scoping one record>",
    "fields": [
      {"field": "<output field name>", "steps": [ {"kind": "...", ...} ]}
    ],
    "pagination": {"kind": "paginate", "next_selector": "<CSS selector>", "max_pages": <int>},
    "target_urls": ["<url>", ...]
  }

"target_urls" is optional. Set it only when the request gave you no target URLs of its own —
in that case you must propose one or more real, directly fetchable URLs for this task and list
them there. When the request already supplies target URLs, omit "target_urls" entirely.

Each field's steps is an ordered pipeline of operations, each with a "kind":

  - select:      narrow scope to the first match of "selector", then take its text
  - select_all:  collect the trimmed text of every match of "selector" into an array
  - text:        take the trimmed text of the current scope
  - attr:        take the value of the "attr" HTML attribute of the current scope
  - regex:       apply "pattern" to the current value, keeping capture group 1 if present
  - const:       set the field to the literal string "value"
  - paginate:    advance to the next page via "next_selector", up to "max_pages"

Only these seven step kinds exist. Field names must not begin with "__", "os.", or "sys.". Never
emit selectors, patterns, or values referencing eval, exec, compile, __import__, os.system,
subprocess, shutil, open(, input(, breakpoint, file://, javascript:, or <script — these are
rejected outright.

Every plan MUST set a non-empty "record_selector" and at least one entry in "fields"; a plan
without both is not executable.

Respond with the JSON plan and nothing else.`

const shapeSystemPrompt = `You are a data-shaping parser. You are given raw scraped records and a ` +
	`target field list or response template. You do not fetch data, browse, or invent facts not ` +
	`present in the input. You extract, normalize, and reshape the given records into JSON matching ` +
	`the requested structure.

Respond with a single JSON object or array and nothing else — no markdown fences, no commentary.
If a requested field cannot be found in the input for a record, set it to null rather than omitting
it or guessing a value.`

// BuildPlanMessages constructs the two-message conversation for plan
// generation from a ScrapeRequest.
func BuildPlanMessages(req model.ScrapeRequest) []llmclient.Message {
	var sb strings.Builder
	sb.WriteString("Description: ")
	sb.WriteString(req.Description)
	if len(req.TargetURLs) > 0 {
		sb.WriteString("\n\nTarget URLs:\n")
		for _, u := range req.TargetURLs {
			sb.WriteString("- ")
			sb.WriteString(u)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("\n\nNo target URLs were given. Propose one or more real, directly fetchable " +
			"URLs for this task yourself and list them in the plan's \"target_urls\" field.\n")
	}
	if len(req.DesiredFields) > 0 {
		sb.WriteString("\nDesired fields:\n")
		for _, f := range req.DesiredFields {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	if req.UpdateFrequency != "" {
		sb.WriteString(fmt.Sprintf("\nUpdate frequency: %s\n", req.UpdateFrequency))
	}

	return []llmclient.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

// BuildShapeMessages constructs the two-message conversation for response
// shaping from an ExecutionResult and the original request's desired shape.
func BuildShapeMessages(exec model.ExecutionResult, req model.ScrapeRequest, extractedText string) []llmclient.Message {
	var sb strings.Builder
	sb.WriteString("Description: ")
	sb.WriteString(req.Description)
	sb.WriteString("\n")

	if len(req.DesiredFields) > 0 {
		sb.WriteString("\nRequired fields:\n")
		for _, f := range req.DesiredFields {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	if len(req.ResponseTemplate) > 0 {
		sb.WriteString("\nResponse template (match this shape):\n")
		sb.WriteString(fmt.Sprintf("%v\n", req.ResponseTemplate))
	}

	sb.WriteString(fmt.Sprintf("\nScraped %d record(s) from %d source(s).\n", exec.Meta.TotalCount, len(exec.Meta.TargetURLs)))
	sb.WriteString("\nRaw scraped content:\n")
	sb.WriteString(extractedText)

	return []llmclient.Message{
		{Role: "system", Content: shapeSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
