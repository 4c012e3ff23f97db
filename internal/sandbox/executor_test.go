package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/usercommon/scrapeapi/internal/model"
)

type fakeFetcher struct {
	pages map[string]string
	fail  map[string]bool
	delay map[string]time.Duration
}

func (f fakeFetcher) Fetch(url string) (string, error) {
	if d, ok := f.delay[url]; ok {
		time.Sleep(d)
	}
	if f.fail[url] {
		return "", fmt.Errorf("fetch failed for %s", url)
	}
	return f.pages[url], nil
}

func planSource() string {
	return `{"record_selector":".item","fields":[{"field":"title","steps":[{"kind":"text"}]}]}`
}

func TestExecuteTextHappyPath(t *testing.T) {
	fetcher := fakeFetcher{pages: map[string]string{
		"https://a.example": `<div class="item">A1</div><div class="item">A2</div>`,
	}}
	exec := &Executor{Fetcher: fetcher}
	result := exec.ExecuteText(context.Background(), planSource(), []string{"https://a.example"}, time.Second)

	if !result.OK {
		t.Fatalf("expected OK result, errors: %v", result.Errors)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if len(result.PerSource) != 1 || !result.PerSource[0].OK {
		t.Fatalf("expected one successful per-source entry, got %+v", result.PerSource)
	}
}

func TestExecuteTextInvalidPlanNeverFetches(t *testing.T) {
	fetcher := fakeFetcher{pages: map[string]string{"https://a.example": `<div class="item">A1</div>`}}
	exec := &Executor{Fetcher: fetcher}
	result := exec.ExecuteText(context.Background(), `{"record_selector":"","fields":[]}`, []string{"https://a.example"}, time.Second)

	if result.OK {
		t.Fatal("expected invalid plan to fail")
	}
	if len(result.PerSource) != 0 {
		t.Fatal("expected no per-source attempts for a rejected plan")
	}
}

func TestExecuteTextTimeout(t *testing.T) {
	fetcher := fakeFetcher{
		pages: map[string]string{"https://slow.example": `<div class="item">S</div>`},
		delay: map[string]time.Duration{"https://slow.example": 200 * time.Millisecond},
	}
	exec := &Executor{Fetcher: fetcher}
	result := exec.ExecuteText(context.Background(), planSource(), []string{"https://slow.example"}, 20*time.Millisecond)

	if result.OK {
		t.Fatal("expected timeout to produce a non-OK result")
	}
	if len(result.PerSource) != 1 || result.PerSource[0].Error != "timeout" {
		t.Fatalf("expected timeout per-source entry, got %+v", result.PerSource)
	}
	found := false
	for _, e := range result.Errors {
		if len(e) >= 18 && e[:18] == "execution-timeout:" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an execution-timeout error, got %v", result.Errors)
	}
}

func TestExecuteTextPartialFailurePreservesOrder(t *testing.T) {
	urls := []string{"https://ok1.example", "https://bad.example", "https://ok2.example"}
	fetcher := fakeFetcher{
		pages: map[string]string{
			"https://ok1.example": `<div class="item">1</div>`,
			"https://ok2.example": `<div class="item">2</div>`,
		},
		fail: map[string]bool{"https://bad.example": true},
	}
	exec := &Executor{Fetcher: fetcher}
	result := exec.ExecuteText(context.Background(), planSource(), urls, time.Second)

	if !result.OK {
		t.Fatalf("expected overall OK since some sources succeeded, errors: %v", result.Errors)
	}
	if len(result.PerSource) != 3 {
		t.Fatalf("expected 3 per-source entries, got %d", len(result.PerSource))
	}
	for i, url := range urls {
		if result.PerSource[i].URL != url {
			t.Fatalf("expected per-source[%d].URL=%s, got %s", i, url, result.PerSource[i].URL)
		}
	}
	if result.PerSource[0].OK != true || result.PerSource[1].OK != false || result.PerSource[2].OK != true {
		t.Fatalf("unexpected per-source outcomes: %+v", result.PerSource)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 aggregated records from the two healthy sources, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one error for the failing source, got %v", result.Errors)
	}
}

func TestExecuteTextFollowsPagination(t *testing.T) {
	fetcher := fakeFetcher{pages: map[string]string{
		"https://a.example/p1": `<div class="item">1</div><a class="next" href="/p2">next</a>`,
		"https://a.example/p2": `<div class="item">2</div>`,
	}}
	exec := &Executor{Fetcher: fetcher}
	source := `{"record_selector":".item","fields":[{"field":"title","steps":[{"kind":"text"}]}],` +
		`"pagination":{"kind":"paginate","next_selector":".next","max_pages":5}}`

	result := exec.ExecuteText(context.Background(), source, []string{"https://a.example/p1"}, time.Second)

	if !result.OK {
		t.Fatalf("expected OK, errors: %v", result.Errors)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected records from both pages, got %d", len(result.Records))
	}
}

func TestExecuteGeneratedPlanMergesMetadata(t *testing.T) {
	fetcher := fakeFetcher{pages: map[string]string{"https://a.example": `<div class="item">A</div>`}}
	exec := &Executor{Fetcher: fetcher}
	gp := model.GeneratedPlan{
		Source:       planSource(),
		TargetURLs:   []string{"https://a.example"},
		Model:        "deepseek-chat",
		GenerationMS: 42,
	}

	result := exec.ExecuteGeneratedPlan(context.Background(), gp, time.Second)

	if result.Meta.Model != "deepseek-chat" {
		t.Fatalf("expected model metadata to propagate, got %q", result.Meta.Model)
	}
	if result.Meta.GenerationMS == nil || *result.Meta.GenerationMS != 42 {
		t.Fatalf("expected generation_ms metadata to propagate, got %v", result.Meta.GenerationMS)
	}
}
