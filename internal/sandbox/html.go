package sandbox

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves a URL's HTML body. Separated from Executor so tests
// can substitute an in-memory fetcher without a live network.
type Fetcher interface {
	Fetch(url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP(S) using the configured user agent
// and request timeout, with an explicit per-request client timeout.
type HTTPFetcher struct {
	UserAgent string
	Timeout   time.Duration
}

func (f HTTPFetcher) Fetch(url string) (string, error) {
	client := &http.Client{Timeout: f.Timeout}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// runPlanOnHTML evaluates a plan's record_selector + field steps against
// one page's HTML, using goquery's permissive HTML-parsing backend
// (golang.org/x/net/html beneath it), and returns the extracted records.
func runPlanOnHTML(plan Plan, html string) ([]map[string]any, error) {
	_, records, err := extractPage(plan, html)
	return records, err
}

// extractPage parses one page's HTML and extracts its records, returning
// the parsed document too so the caller can resolve a pagination link
// against it.
func extractPage(plan Plan, html string) (*goquery.Document, []map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var records []map[string]any
	doc.Find(plan.RecordSelector).Each(func(_ int, sel *goquery.Selection) {
		record := map[string]any{}
		for _, f := range plan.Fields {
			record[f.Field] = evalField(sel, f.Steps)
		}
		records = append(records, record)
	})
	return doc, records, nil
}

// nextPageURL resolves a pagination step's next_selector against a parsed
// page, returning the absolute URL of the next page's anchor if found. Link
// resolution (relative-vs-absolute hrefs resolved against the current page)
// resolves relative and absolute hrefs alike via net/url rather than a
// bare string-prefix check.
func nextPageURL(doc *goquery.Document, pagination *Step, currentURL string) (string, bool) {
	if pagination == nil || pagination.NextSel == "" {
		return "", false
	}
	href, ok := doc.Find(pagination.NextSel).First().Attr("href")
	if !ok || href == "" {
		return "", false
	}
	return resolveHref(currentURL, href)
}

func resolveHref(base, href string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(ref).String(), true
}

// evalField threads a record's DOM scope through a step chain, producing
// a single output value.
func evalField(scope *goquery.Selection, steps []Step) any {
	cur := scope
	var value any = ""

	for _, s := range steps {
		switch s.Kind {
		case StepSelect:
			if s.Selector != "" {
				cur = cur.Find(s.Selector).First()
			}
			value = strings.TrimSpace(cur.Text())
		case StepSelectAll:
			var items []string
			cur.Find(s.Selector).Each(func(_ int, sub *goquery.Selection) {
				items = append(items, strings.TrimSpace(sub.Text()))
			})
			value = items
		case StepText:
			value = strings.TrimSpace(cur.Text())
		case StepAttr:
			v, _ := cur.Attr(s.Attr)
			value = strings.TrimSpace(v)
		case StepRegex:
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				continue
			}
			m := re.FindStringSubmatch(fmt.Sprint(value))
			if len(m) > 1 {
				value = m[1]
			} else if len(m) == 1 {
				value = m[0]
			} else {
				value = nil
			}
		case StepConst:
			value = s.Value
		}
	}
	return value
}
