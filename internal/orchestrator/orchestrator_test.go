package orchestrator

import (
	"context"
	"testing"

	"github.com/usercommon/scrapeapi/internal/llmclient"
	"github.com/usercommon/scrapeapi/internal/model"
)

type fakeCompleter struct {
	responses []string
	calls     int
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llmclient.Message, m string, temperature float64, maxTokens int) (string, error) {
	if f.calls >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func TestGeneratePlanSucceedsFirstTry(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"record_selector":".item","fields":[{"field":"title","steps":[{"kind":"text"}]}]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", Temperature: 0.3, MaxTokensPlan: 4000})
	req := model.ScrapeRequest{Description: "titles", TargetURLs: []string{"https://a.example"}}

	plan, err := o.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Validation.Executable() {
		t.Fatalf("expected executable plan, got %+v", plan.Validation)
	}
	if completer.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call, got %d", completer.calls)
	}
}

func TestGeneratePlanRetriesOnceThenSucceeds(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"record_selector":"","fields":[]}`,
		`{"record_selector":".item","fields":[{"field":"title","steps":[{"kind":"text"}]}]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", Temperature: 0.3, MaxTokensPlan: 4000})
	req := model.ScrapeRequest{Description: "titles", TargetURLs: []string{"https://a.example"}}

	plan, err := o.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plan.Validation.Executable() {
		t.Fatal("expected executable plan after retry")
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly 2 LLM calls, got %d", completer.calls)
	}
}

func TestGeneratePlanFailsAfterExhaustingRetries(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"record_selector":"","fields":[]}`,
		`{"record_selector":"","fields":[]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", Temperature: 0.3, MaxTokensPlan: 4000})
	req := model.ScrapeRequest{Description: "titles", TargetURLs: []string{"https://a.example"}}

	_, err := o.GeneratePlan(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly 2 LLM calls, got %d", completer.calls)
	}
}

func TestShapeDataRejectsEmptyExecution(t *testing.T) {
	completer := &fakeCompleter{}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	_, err := o.ShapeData(context.Background(), model.ExecutionResult{OK: false}, model.ScrapeRequest{})
	if err == nil {
		t.Fatal("expected error for empty execution")
	}
	if completer.calls != 0 {
		t.Fatal("expected no LLM call for empty execution")
	}
}

func TestShapeDataHappyPath(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"title":"Widget","price":"9.99"}`}}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	exec := model.ExecutionResult{
		OK:      true,
		Records: []map[string]any{{"title": "Widget", "price": "9.99"}},
		Meta:    model.ExecutionMeta{TotalCount: 1},
	}
	req := model.ScrapeRequest{Description: "widget", DesiredFields: []string{"title", "price"}}

	parsed, err := o.ShapeData(context.Background(), exec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Data["title"] != "Widget" {
		t.Fatalf("expected shaped data to include title, got %+v", parsed.Data)
	}
}

func TestGeneratePlanProposesSourcesWhenNoneGiven(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"record_selector":".item","fields":[{"field":"symbol","steps":[{"kind":"text"}]}],"target_urls":["https://coins.example/top"]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", Temperature: 0.3, MaxTokensPlan: 4000})
	req := model.ScrapeRequest{Description: "crypto prices", DesiredFields: []string{"symbol"}}

	plan, err := o.GeneratePlan(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.TargetURLs) != 1 || plan.TargetURLs[0] != "https://coins.example/top" {
		t.Fatalf("expected the LLM-proposed URL to surface in TargetURLs, got %+v", plan.TargetURLs)
	}
}

func TestShapeDataHandlesTemplatedPrimaryArray(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"data":[{"symbol":"BTC","price":"50000"},{"symbol":"ETH","price":"3000"}]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	exec := model.ExecutionResult{
		OK:      true,
		Records: []map[string]any{{"symbol": "BTC"}, {"symbol": "ETH"}, {"symbol": "SOL"}},
		Meta:    model.ExecutionMeta{TotalCount: 3},
	}
	req := model.ScrapeRequest{
		Description:      "crypto prices",
		DesiredFields:    []string{"symbol", "price"},
		ResponseTemplate: map[string]any{"data": []any{}},
	}

	parsed, err := o.ShapeData(context.Background(), exec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Meta.RecordsParsed != 2 {
		t.Fatalf("expected records_parsed computed from the shaped data's primary array (2), got %d", parsed.Meta.RecordsParsed)
	}
	want := []string{"price", "symbol"}
	if len(parsed.Meta.FieldsExtracted) != len(want) {
		t.Fatalf("expected fields_extracted from the primary record, got %+v", parsed.Meta.FieldsExtracted)
	}
	for i, f := range want {
		if parsed.Meta.FieldsExtracted[i] != f {
			t.Fatalf("expected fields_extracted %+v, got %+v", want, parsed.Meta.FieldsExtracted)
		}
	}
}

func TestShapeDataRetriesOnMissingFieldInPrimaryRecord(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"data":[{"symbol":"BTC"}]}`,
		`{"data":[{"symbol":"BTC","price":"50000"}]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	exec := model.ExecutionResult{OK: true, Records: []map[string]any{{"symbol": "BTC"}}}
	req := model.ScrapeRequest{Description: "crypto prices", DesiredFields: []string{"symbol", "price"}}

	parsed, err := o.ShapeData(context.Background(), exec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly 2 LLM calls, got %d", completer.calls)
	}
	if parsed.Meta.RecordsParsed != 1 {
		t.Fatalf("expected records_parsed 1, got %d", parsed.Meta.RecordsParsed)
	}
}

func TestShapeDataRaisesShapeValidationAfterExhaustingRetries(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		`{"data":[{"symbol":"BTC"}]}`,
		`{"data":[{"symbol":"BTC"}]}`,
	}}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	exec := model.ExecutionResult{OK: true, Records: []map[string]any{{"symbol": "BTC"}}}
	req := model.ScrapeRequest{Description: "crypto prices", DesiredFields: []string{"symbol", "price"}}

	_, err := o.ShapeData(context.Background(), exec, req)
	if err == nil {
		t.Fatal("expected a shape-validation error after exhausting retries")
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly 2 LLM calls, got %d", completer.calls)
	}
}

func TestShapeDataRetriesOnInvalidJSON(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"not json at all", `{"title":"Widget"}`}}
	o := New(completer, Config{Model: "deepseek-chat", MaxTokensShape: 8000})
	exec := model.ExecutionResult{OK: true, Records: []map[string]any{{"title": "Widget"}}}
	req := model.ScrapeRequest{Description: "widget"}

	parsed, err := o.ShapeData(context.Background(), exec, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Data["title"] != "Widget" {
		t.Fatalf("expected recovery after retry, got %+v", parsed.Data)
	}
	if completer.calls != 2 {
		t.Fatalf("expected exactly 2 LLM calls, got %d", completer.calls)
	}
}
