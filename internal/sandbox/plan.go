// Package sandbox implements the scraper-plan interpreter: the Go-native
// recasting of an untrusted-program sandbox as a declarative interpreter.
// A Plan is JSON emitted by the LLM instead of program source; Validate
// performs static checks against the plan text, and Executor.ExecuteText
// runs the plan against live pages (fetched by a Fetcher, parsed with
// goquery), honoring a wall-clock timeout and per-source isolation.
package sandbox

// StepKind is the fixed allow-list of plan operations.
type StepKind string

const (
	StepSelect    StepKind = "select"
	StepSelectAll StepKind = "select_all"
	StepAttr      StepKind = "attr"
	StepText      StepKind = "text"
	StepRegex     StepKind = "regex"
	StepConst     StepKind = "const"
	StepPaginate  StepKind = "paginate"
)

var allowedStepKinds = map[StepKind]bool{
	StepSelect:    true,
	StepSelectAll: true,
	StepAttr:      true,
	StepText:      true,
	StepRegex:     true,
	StepConst:     true,
	StepPaginate:  true,
}

// Step is one operation in a plan's record pipeline.
type Step struct {
	Kind      StepKind `json:"kind"`
	Selector  string   `json:"selector,omitempty"`
	Attr      string   `json:"attr,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Field     string   `json:"field,omitempty"`
	Value     string   `json:"value,omitempty"`
	MaxPages  int      `json:"max_pages,omitempty"`
	NextSel   string   `json:"next_selector,omitempty"`
}

// FieldExtractor names one output field and the step chain that produces
// its value from a record's DOM scope.
type FieldExtractor struct {
	Field string `json:"field"`
	Steps []Step `json:"steps"`
}

// Plan is the declarative scraper plan the LLM emits in place of program
// source. RecordSelector scopes each record's DOM node (the entry-point
// equivalent of `scrape_data`); Fields are evaluated relative to that
// scope. Pagination is optional. TargetURLs is populated by the LLM only
// when the request carried no target URLs of its own, letting the model
// propose the sources it intends to scrape.
type Plan struct {
	RecordSelector string           `json:"record_selector"`
	Fields         []FieldExtractor `json:"fields"`
	Pagination     *Step            `json:"pagination,omitempty"`
	AllowedDomains []string         `json:"allowed_domains,omitempty"`
	TargetURLs     []string         `json:"target_urls,omitempty"`
}
