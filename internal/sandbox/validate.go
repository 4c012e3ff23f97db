package sandbox

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/usercommon/scrapeapi/internal/model"
)

// forbiddenSubstrings mirrors the Python sandbox's textual/AST scan for
// dynamic-compile, process-escape, and filesystem-escape identifiers
// recast onto the declarative surface:
// any of these appearing in a selector/pattern/value is conservatively
// rejected, since none of them can mean anything legitimate in a CSS
// selector, regex pattern, or literal constant.
var forbiddenSubstrings = []string{
	"eval(", "exec(", "compile(", "__import__",
	"os.system", "subprocess", "shutil",
	"open(", "input(", "breakpoint",
	"file://", "javascript:", "<script",
}

var forbiddenFieldPrefixes = []string{"__", "os.", "sys."}

// Validate performs the four static checks (syntax, allowed step kinds,
// forbidden operations, entry point) against raw plan JSON text and
// returns the populated ValidationResult. Validate is pure and
// side-effect-free: calling it twice on the same source yields the same
// flags and error list.
func Validate(source string) (model.ValidationResult, *Plan) {
	result := model.ValidationResult{
		SyntaxOK:       true,
		ImportsOK:      true,
		NoForbiddenOps: true,
		SignatureOK:    true,
	}

	var plan Plan
	if err := json.Unmarshal([]byte(source), &plan); err != nil {
		result.SyntaxOK = false
		result.Errors = append(result.Errors, fmt.Sprintf("syntax: %s", describeJSONError(err)))
		return result, nil
	}

	allSteps := collectSteps(plan)

	for _, s := range allSteps {
		if !allowedStepKinds[s.Kind] {
			result.ImportsOK = false
			result.Errors = append(result.Errors, fmt.Sprintf("security: unknown step kind %q", s.Kind))
		}
	}

	for _, s := range allSteps {
		if hit := scanForbidden(s.Selector, s.Pattern, s.Value, s.Attr); hit != "" {
			result.NoForbiddenOps = false
			result.Errors = append(result.Errors, fmt.Sprintf("security: forbidden operation %q", hit))
		}
		if s.Kind == StepRegex && s.Pattern != "" {
			if _, err := regexp.Compile(s.Pattern); err != nil {
				result.NoForbiddenOps = false
				result.Errors = append(result.Errors, fmt.Sprintf("security: invalid regex pattern: %v", err))
			}
		}
	}

	for _, f := range plan.Fields {
		for _, prefix := range forbiddenFieldPrefixes {
			if strings.HasPrefix(f.Field, prefix) {
				result.NoForbiddenOps = false
				result.Errors = append(result.Errors, fmt.Sprintf("security: forbidden field name %q", f.Field))
			}
		}
	}

	if plan.RecordSelector == "" || len(plan.Fields) == 0 {
		result.SignatureOK = false
		result.Errors = append(result.Errors, "security: plan defines no record_selector/fields entry point")
	}

	if !result.Executable() {
		return result, nil
	}
	return result, &plan
}

func collectSteps(p Plan) []Step {
	var steps []Step
	for _, f := range p.Fields {
		steps = append(steps, f.Steps...)
	}
	if p.Pagination != nil {
		steps = append(steps, *p.Pagination)
	}
	return steps
}

func scanForbidden(values ...string) string {
	for _, v := range values {
		lower := strings.ToLower(v)
		for _, bad := range forbiddenSubstrings {
			if strings.Contains(lower, bad) {
				return bad
			}
		}
	}
	return ""
}

func describeJSONError(err error) string {
	if se, ok := err.(*json.SyntaxError); ok {
		return fmt.Sprintf("%s (byte offset %d)", err.Error(), se.Offset)
	}
	return err.Error()
}
