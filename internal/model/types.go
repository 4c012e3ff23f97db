// Package model holds the data types shared across the sandbox, LLM
// orchestration, registry, and server components — the "glue" types named
// in the system's data model.
package model

import "time"

// ScrapeRequest is the input from the front-end.
type ScrapeRequest struct {
	Description      string          `json:"description"`
	DesiredFields     []string        `json:"desired_fields"`
	ResponseTemplate  map[string]any  `json:"response_template,omitempty"`
	TargetURLs        []string        `json:"target_urls"`
	UpdateFrequency   string          `json:"update_frequency"`
}

// ValidationResult is the static-validation outcome for a generated plan.
// A plan is executable iff all four *_ok flags hold.
type ValidationResult struct {
	SyntaxOK       bool     `json:"syntax_ok"`
	ImportsOK      bool     `json:"imports_ok"`
	NoForbiddenOps bool     `json:"no_forbidden_ops"`
	SignatureOK    bool     `json:"signature_ok"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// Executable reports whether every static check passed.
func (v ValidationResult) Executable() bool {
	return v.SyntaxOK && v.ImportsOK && v.NoForbiddenOps && v.SignatureOK
}

// GeneratedPlan is a declarative scraper plan captured from an LLM
// completion, along with the generation metadata needed to audit it.
type GeneratedPlan struct {
	Source         string           `json:"source"` // the raw plan JSON text
	Validation     ValidationResult `json:"validation"`
	TargetURLs     []string         `json:"target_urls"`
	RequiredFields []string         `json:"required_fields"`
	Model          string           `json:"model"`
	TokensUsed     int              `json:"tokens_used"`
	GenerationMS   int64            `json:"generation_ms"`
}

// PerSourceResult summarizes the outcome of scraping one URL within a
// multi-URL execution.
type PerSourceResult struct {
	URL             string `json:"url"`
	OK              bool   `json:"ok"`
	RecordCount     int    `json:"record_count"`
	FilteredCount   int    `json:"filtered_count"`
	DuplicateCount  int    `json:"duplicate_count"`
	Error           string `json:"error,omitempty"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	Method          string `json:"method"`
	Confidence      string `json:"confidence"`
}

// ExecutionMeta is the meta block of an ExecutionResult.
type ExecutionMeta struct {
	TotalCount     int      `json:"total_count"`
	FilteredCount  int      `json:"filtered_count"`
	DuplicateCount int      `json:"duplicate_count"`
	TargetURLs     []string `json:"target_urls"`
	Model          string   `json:"model,omitempty"`
	GenerationMS   *int64   `json:"generation_ms,omitempty"`
	Method         string   `json:"method"`
	Confidence     string   `json:"confidence"`
}

// ExecutionResult is the outcome of running a scraper plan against one or
// more URLs. Invariants once a plan has passed validation: len(PerSource) ==
// len(Meta.TargetURLs) in the same order; Records is the concatenation of
// successful per-source records in source order; Meta.TotalCount ==
// len(Records). A plan rejected by validation is never run: its result has
// empty PerSource and Records while Meta.TargetURLs still lists the URLs.
type ExecutionResult struct {
	OK         bool                     `json:"ok"`
	Records    []map[string]any         `json:"records"`
	Meta       ExecutionMeta            `json:"meta"`
	Errors     []string                 `json:"errors"`
	PerSource  []PerSourceResult        `json:"per_source"`
	ElapsedMS  int64                    `json:"elapsed_ms"`
	ScrapedAt  time.Time                `json:"scraped_at"`
}

// ParsedMeta is the meta block of a ParsedResponse.
type ParsedMeta struct {
	Model           string    `json:"model"`
	TokensUsed      int       `json:"tokens_used"`
	ParsingMS       int64     `json:"parsing_ms"`
	RecordsParsed   int       `json:"records_parsed"`
	FieldsExtracted []string  `json:"fields_extracted"`
	DataSources     []string  `json:"data_sources"`
	Timestamp       time.Time `json:"timestamp"`
}

// ParsedResponse is the shaped, schema-conformant output of the LLM's
// shaping call.
type ParsedResponse struct {
	Data       map[string]any `json:"data"`
	Meta       ParsedMeta     `json:"meta"`
	SourceMeta ExecutionMeta  `json:"source_meta"`
	RawOutput  string         `json:"raw_output"`
}

// EndpointRecord is a persisted, registered endpoint.
type EndpointRecord struct {
	EndpointID       string         `json:"endpoint_id" db:"endpoint_id"`
	JSONData         map[string]any `json:"json_data" db:"-"`
	JSONDataRaw      string         `json:"-" db:"json_data"`
	Description      string         `json:"description" db:"description"`
	SourceURLs       []string       `json:"source_urls" db:"-"`
	SourceURLsRaw    string         `json:"-" db:"source_urls"`
	RecordsCount     int            `json:"records_count" db:"records_count"`
	Fields           []string       `json:"fields" db:"-"`
	FieldsRaw        string         `json:"-" db:"fields"`
	ParsingTimestamp time.Time      `json:"parsing_timestamp" db:"parsing_timestamp"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// EndpointInfo is the lightweight summary returned by create/list.
type EndpointInfo struct {
	EndpointID   string    `json:"endpoint_id"`
	AccessURL    string    `json:"access_url"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	RecordsCount int       `json:"records_count"`
}

// GenerateAndPublishResult is the return shape of the orchestrator →
// front-end interface.
type GenerateAndPublishResult struct {
	Plan     GeneratedPlan    `json:"plan"`
	Execution ExecutionResult `json:"execution"`
	Parsed   ParsedResponse   `json:"parsed"`
	Endpoint EndpointInfo     `json:"endpoint_info"`
}
