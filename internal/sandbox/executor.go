package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/usercommon/scrapeapi/internal/model"
)

// Executor runs validated plans against live URLs under the safety policy
// described by the execution contract: wall-clock timeout, per-source
// isolation, and input-order preservation.
type Executor struct {
	Fetcher Fetcher
}

// NewExecutor builds an Executor backed by an HTTPFetcher configured with
// the given user agent and per-request timeout.
func NewExecutor(userAgent string, requestTimeout time.Duration) *Executor {
	return &Executor{Fetcher: HTTPFetcher{UserAgent: userAgent, Timeout: requestTimeout}}
}

// ExecuteText validates and runs raw plan JSON text against the given
// URLs. It always returns an ExecutionResult; it never panics across this
// boundary. Failures are captured in Errors/OK instead.
func (e *Executor) ExecuteText(ctx context.Context, source string, urls []string, timeout time.Duration) model.ExecutionResult {
	start := time.Now()

	validation, plan := Validate(source)
	if !validation.Executable() {
		return model.ExecutionResult{
			OK:        false,
			Records:   []map[string]any{},
			Errors:    validation.Errors,
			PerSource: []model.PerSourceResult{},
			Meta: model.ExecutionMeta{
				TargetURLs: urls,
				Method:     "plan_interpreter",
				Confidence: "none",
			},
			ElapsedMS: time.Since(start).Milliseconds(),
			ScrapedAt: time.Now().UTC(),
		}
	}

	return e.run(ctx, *plan, urls, timeout, start)
}

// ExecuteGeneratedPlan extracts source, target URLs, and generation
// metadata from a GeneratedPlan and delegates to ExecuteText, merging AI
// metadata into the result.
func (e *Executor) ExecuteGeneratedPlan(ctx context.Context, gp model.GeneratedPlan, timeout time.Duration) model.ExecutionResult {
	result := e.ExecuteText(ctx, gp.Source, gp.TargetURLs, timeout)
	result.Meta.Model = gp.Model
	ms := gp.GenerationMS
	result.Meta.GenerationMS = &ms
	return result
}

// run executes the plan's record pipeline for each URL in order. Each
// fetch runs in its own goroutine so fetches can overlap, but the
// aggregator only ever assembles results in input order. An outer
// deadline enforces the wall-clock timeout over the whole batch.
func (e *Executor) run(ctx context.Context, plan Plan, urls []string, timeout time.Duration, start time.Time) model.ExecutionResult {
	type sourceOutcome struct {
		result  model.PerSourceResult
		records []map[string]any
	}

	outcomes := make([]sourceOutcome, len(urls))
	done := make(chan int, len(urls))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for i, url := range urls {
		go func(i int, url string) {
			sourceStart := time.Now()
			records, err := e.scrapeOne(plan, url)
			elapsed := time.Since(sourceStart).Milliseconds()
			if err != nil {
				outcomes[i] = sourceOutcome{result: model.PerSourceResult{
					URL: url, OK: false, Error: err.Error(), ElapsedMS: elapsed,
					Method: "plan_interpreter", Confidence: "none",
				}}
			} else {
				outcomes[i] = sourceOutcome{
					result: model.PerSourceResult{
						URL: url, OK: true, RecordCount: len(records), ElapsedMS: elapsed,
						Method: "plan_interpreter", Confidence: "high",
					},
					records: records,
				}
			}
			select {
			case done <- i:
			case <-runCtx.Done():
			}
		}(i, url)
	}

	completed := make(map[int]bool, len(urls))
	timedOut := false
loop:
	for len(completed) < len(urls) {
		select {
		case i := <-done:
			completed[i] = true
		case <-runCtx.Done():
			timedOut = true
			break loop
		}
	}

	perSource := make([]model.PerSourceResult, len(urls))
	var records []map[string]any
	var errs []string
	for i, url := range urls {
		if !completed[i] {
			perSource[i] = model.PerSourceResult{URL: url, OK: false, Error: "timeout", Method: "plan_interpreter", Confidence: "none"}
			continue
		}
		perSource[i] = outcomes[i].result
		if outcomes[i].result.OK {
			records = append(records, outcomes[i].records...)
		} else {
			errs = append(errs, fmt.Sprintf("%s: %s", url, outcomes[i].result.Error))
		}
	}

	if timedOut {
		errs = append(errs, fmt.Sprintf("execution-timeout: %s", timeout))
	}

	if records == nil {
		records = []map[string]any{}
	}

	return model.ExecutionResult{
		OK:      len(records) >= 1,
		Records: records,
		Meta: model.ExecutionMeta{
			TotalCount: len(records),
			TargetURLs: urls,
			Method:     "plan_interpreter",
			Confidence: confidenceFor(len(records), len(urls)),
		},
		Errors:    errs,
		PerSource: perSource,
		ElapsedMS: time.Since(start).Milliseconds(),
		ScrapedAt: time.Now().UTC(),
	}
}

// maxPaginationPages bounds pagination even if a plan's max_pages is unset
// or unreasonably large, so a runaway "next page" selector cannot loop
// forever against a live site.
const maxPaginationPages = 20

// scrapeOne fetches url and extracts records, following the plan's
// pagination step (if any) across successive pages up to its max_pages
// bound. Page-to-page link resolution resolves relative hrefs via net/url
// rather than a bare "/" prefix check.
func (e *Executor) scrapeOne(plan Plan, startURL string) ([]map[string]any, error) {
	limit := maxPaginationPages
	if plan.Pagination != nil && plan.Pagination.MaxPages > 0 && plan.Pagination.MaxPages < limit {
		limit = plan.Pagination.MaxPages
	}

	var all []map[string]any
	currentURL := startURL
	for page := 0; page < limit; page++ {
		html, err := e.Fetcher.Fetch(currentURL)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}

		doc, records, err := extractPage(plan, html)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			break
		}
		all = append(all, records...)

		next, ok := nextPageURL(doc, plan.Pagination, currentURL)
		if !ok || next == currentURL {
			break
		}
		currentURL = next
	}
	return all, nil
}

func confidenceFor(records, sources int) string {
	switch {
	case records == 0:
		return "none"
	case sources > 0 && records >= sources:
		return "high"
	default:
		return "medium"
	}
}
