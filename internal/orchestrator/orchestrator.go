// Package orchestrator drives the two LLM-backed steps of the pipeline:
// generating an executable scraper plan from a natural-language request,
// and shaping raw scraped records into the caller's desired response
// structure. Both steps call the LLM at most twice (one retry) and always
// return a result value plus an error, logging failures rather than
// panicking across the boundary.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/usercommon/scrapeapi/internal/apperrors"
	"github.com/usercommon/scrapeapi/internal/llmclient"
	"github.com/usercommon/scrapeapi/internal/model"
	"github.com/usercommon/scrapeapi/internal/prompt"
	"github.com/usercommon/scrapeapi/internal/sandbox"
)

// Completer is the subset of llmclient.Client used by the orchestrator,
// narrowed to an interface so tests can substitute a fake.
type Completer interface {
	Complete(ctx context.Context, messages []llmclient.Message, model string, temperature float64, maxTokens int) (string, error)
}

// Config carries the model parameters the orchestrator applies to each
// LLM call, taken from config.ProviderConfig.
type Config struct {
	Model          string
	Temperature    float64
	MaxTokensPlan  int
	MaxTokensShape int
}

// Orchestrator wires an LLM client and a plan executor together to carry
// out plan generation and response shaping.
type Orchestrator struct {
	client Completer
	cfg    Config
	logger *slog.Logger
}

// New builds an Orchestrator against the given LLM client and model
// configuration.
func New(client Completer, cfg Config) *Orchestrator {
	return &Orchestrator{client: client, cfg: cfg, logger: slog.Default()}
}

// GeneratePlan asks the LLM for a scraper plan satisfying req, validates it
// via sandbox.Validate, and retries once with the validation errors fed
// back to the model if the first attempt is not executable. It returns a
// KindPlanValidation error if both attempts fail validation.
func (o *Orchestrator) GeneratePlan(ctx context.Context, req model.ScrapeRequest) (model.GeneratedPlan, error) {
	requestID := uuid.NewString()
	messages := prompt.BuildPlanMessages(req)

	var lastValidation model.ValidationResult
	var lastSource string

	for attempt := 0; attempt < 2; attempt++ {
		start := time.Now()
		raw, err := o.client.Complete(ctx, messages, o.cfg.Model, o.cfg.Temperature, o.cfg.MaxTokensPlan)
		if err != nil {
			return model.GeneratedPlan{}, fmt.Errorf("generating plan: %w", err)
		}
		elapsed := time.Since(start).Milliseconds()

		source := extractJSON(raw)
		validation, plan := sandbox.Validate(source)
		lastValidation, lastSource = validation, source

		if validation.Executable() {
			o.logger.Info("plan generated", "request_id", requestID, "attempt", attempt, "generation_ms", elapsed)
			targetURLs := req.TargetURLs
			if len(targetURLs) == 0 && plan != nil && len(plan.TargetURLs) > 0 {
				targetURLs = plan.TargetURLs
			}
			return model.GeneratedPlan{
				Source:         source,
				Validation:     validation,
				TargetURLs:     targetURLs,
				RequiredFields: req.DesiredFields,
				Model:          o.cfg.Model,
				GenerationMS:   elapsed,
			}, nil
		}

		o.logger.Warn("generated plan failed validation, retrying", "request_id", requestID, "attempt", attempt, "errors", validation.Errors)
		messages = append(messages, llmclient.Message{Role: "assistant", Content: raw})
		messages = append(messages, llmclient.Message{
			Role:    "user",
			Content: fmt.Sprintf("That plan is not executable: %v. Respond with a corrected JSON plan only.", validation.Errors),
		})
	}

	return model.GeneratedPlan{Source: lastSource, Validation: lastValidation, Model: o.cfg.Model},
		apperrors.New(apperrors.KindPlanValidation, "LLM could not produce an executable plan").
			WithDetail(fmt.Sprintf("%v", lastValidation.Errors))
}

// ShapeData asks the LLM to reshape a successful execution's records into
// the caller's desired structure. It rejects empty executions outright
// (KindEmptyData) since there is nothing to shape.
func (o *Orchestrator) ShapeData(ctx context.Context, exec model.ExecutionResult, req model.ScrapeRequest) (model.ParsedResponse, error) {
	if !exec.OK || len(exec.Records) == 0 {
		return model.ParsedResponse{}, apperrors.New(apperrors.KindEmptyData, "no records were scraped; nothing to shape")
	}

	requestID := uuid.NewString()
	text := extractText(exec)
	messages := prompt.BuildShapeMessages(exec, req, text)

	var lastRaw string
	var lastErr error
	var lastShapeErrs []string

	for attempt := 0; attempt < 2; attempt++ {
		start := time.Now()
		raw, err := o.client.Complete(ctx, messages, o.cfg.Model, o.cfg.Temperature, o.cfg.MaxTokensShape)
		if err != nil {
			return model.ParsedResponse{}, fmt.Errorf("shaping data: %w", err)
		}
		elapsed := time.Since(start).Milliseconds()

		candidate := extractJSON(raw)
		var data map[string]any
		if err := json.Unmarshal([]byte(candidate), &data); err != nil {
			lastRaw, lastErr, lastShapeErrs = raw, err, nil
			o.logger.Warn("shaped response was not valid JSON, retrying", "request_id", requestID, "attempt", attempt, "error", err)
			messages = append(messages, llmclient.Message{Role: "assistant", Content: raw})
			messages = append(messages, llmclient.Message{
				Role:    "user",
				Content: "That was not valid JSON. Respond with a single JSON object or array and nothing else.",
			})
			continue
		}

		arrayKey, hasArray := primaryArrayKey(data, req.ResponseTemplate)
		record := primaryRecord(data, arrayKey, hasArray)

		if shapeErrs := validateShape(data, record, arrayKey, hasArray, req); len(shapeErrs) > 0 {
			lastRaw, lastErr, lastShapeErrs = raw, nil, shapeErrs
			o.logger.Warn("shaped response failed validation, retrying", "request_id", requestID, "attempt", attempt, "errors", shapeErrs)
			messages = append(messages, llmclient.Message{Role: "assistant", Content: raw})
			messages = append(messages, llmclient.Message{
				Role:    "user",
				Content: fmt.Sprintf("That response is not valid: %v. Respond with a corrected JSON object or array and nothing else.", shapeErrs),
			})
			continue
		}

		recordsParsed := recordsParsedCount(data, arrayKey, hasArray)
		fields := sortedMapKeys(record)

		o.logger.Info("data shaped", "request_id", requestID, "attempt", attempt, "parsing_ms", elapsed, "records_parsed", recordsParsed)
		return model.ParsedResponse{
			Data: data,
			Meta: model.ParsedMeta{
				Model:           o.cfg.Model,
				ParsingMS:       elapsed,
				RecordsParsed:   recordsParsed,
				FieldsExtracted: fields,
				DataSources:     exec.Meta.TargetURLs,
			},
			SourceMeta: exec.Meta,
			RawOutput:  raw,
		}, nil
	}

	if len(lastShapeErrs) > 0 {
		return model.ParsedResponse{RawOutput: lastRaw},
			apperrors.New(apperrors.KindShapeValidation, "shaped response failed validation after retry").
				WithDetail(fmt.Sprintf("%v", lastShapeErrs))
	}

	return model.ParsedResponse{RawOutput: lastRaw},
		apperrors.Wrap(apperrors.KindParsing, "LLM did not return parseable JSON after retry", lastErr)
}

// primaryArrayKey finds the top-level key in data holding the primary
// record array: a key the response template itself marks as an array and
// data contains, or else an array-valued key of data. When several keys
// qualify, which one is returned is not defined (map iteration order).
func primaryArrayKey(data map[string]any, template map[string]any) (string, bool) {
	for k, v := range template {
		if _, ok := v.([]any); ok {
			if _, present := data[k]; present {
				return k, true
			}
		}
	}
	for k, v := range data {
		if _, ok := v.([]any); ok {
			return k, true
		}
	}
	return "", false
}

// primaryRecord returns the first element of the primary array, or data
// itself when data carries no array (a flat single-record response).
func primaryRecord(data map[string]any, arrayKey string, hasArray bool) map[string]any {
	if !hasArray {
		return data
	}
	arr, _ := data[arrayKey].([]any)
	if len(arr) == 0 {
		return map[string]any{}
	}
	rec, _ := arr[0].(map[string]any)
	return rec
}

// recordsParsedCount is the length of the primary array, or 1 when data
// is a flat single-record response.
func recordsParsedCount(data map[string]any, arrayKey string, hasArray bool) int {
	if !hasArray {
		return 1
	}
	arr, _ := data[arrayKey].([]any)
	return len(arr)
}

// validateShape runs the desired-fields, template key-set, and
// array-element consistency checks against a shaped response, returning
// one message per failed check.
func validateShape(data, record map[string]any, arrayKey string, hasArray bool, req model.ScrapeRequest) []string {
	var errs []string

	if missing := missingFields(record, req.DesiredFields); len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("missing required field(s): %v", missing))
	}

	if len(req.ResponseTemplate) > 0 && !sameKeySet(data, req.ResponseTemplate) {
		errs = append(errs, fmt.Sprintf("top-level keys do not match the requested template: got %v, want %v",
			sortedMapKeys(data), sortedMapKeys(req.ResponseTemplate)))
	}

	if hasArray {
		arr, _ := data[arrayKey].([]any)
		if !arrayConsistent(arr) {
			errs = append(errs, fmt.Sprintf("records in %q do not share the same fields", arrayKey))
		}
	}

	return errs
}

func missingFields(data map[string]any, required []string) []string {
	var missing []string
	for _, f := range required {
		if _, ok := data[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

func sameKeySet(data, template map[string]any) bool {
	if len(data) != len(template) {
		return false
	}
	for k := range template {
		if _, ok := data[k]; !ok {
			return false
		}
	}
	return true
}

// arrayConsistent reports whether every object element of arr shares the
// same set of keys as the first element.
func arrayConsistent(arr []any) bool {
	var want map[string]bool
	for _, el := range arr {
		rec, ok := el.(map[string]any)
		if !ok {
			continue
		}
		keys := make(map[string]bool, len(rec))
		for k := range rec {
			keys[k] = true
		}
		if want == nil {
			want = keys
			continue
		}
		if len(keys) != len(want) {
			return false
		}
		for k := range keys {
			if !want[k] {
				return false
			}
		}
	}
	return true
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
