// Package registry turns a shaped response into a durable, uniquely
// addressable endpoint. Id generation and conflict retry are grounded on
// hazyhaar-chrc's idgen-suffix convention (internal/idgen); storage
// delegates to internal/store.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/usercommon/scrapeapi/internal/apperrors"
	"github.com/usercommon/scrapeapi/internal/idgen"
	"github.com/usercommon/scrapeapi/internal/model"
	"github.com/usercommon/scrapeapi/internal/store"
)

const maxCreateAttempts = 10

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "for": true, "and": true,
	"to": true, "in": true, "on": true, "with": true, "from": true, "by": true,
	"all": true, "is": true, "are": true, "at": true,
}

// Registry mints endpoint ids and persists endpoint records via a Store.
type Registry struct {
	store   *store.Store
	baseURL string
}

// New builds a Registry backed by the given store; baseURL is prefixed to
// endpoint ids to form access URLs.
func New(s *store.Store, baseURL string) *Registry {
	return &Registry{store: s, baseURL: strings.TrimRight(baseURL, "/")}
}

// Create persists a shaped response as a new endpoint, retrying id
// generation on primary-key conflict up to maxCreateAttempts times.
func (r *Registry) Create(parsed model.ParsedResponse, description string, sourceURLs []string) (model.EndpointInfo, error) {
	if len(parsed.Data) == 0 {
		return model.EndpointInfo{}, apperrors.New(apperrors.KindEmptyData, "cannot publish an endpoint with no data")
	}

	fields := make([]string, 0, len(parsed.Data))
	for k := range parsed.Data {
		fields = append(fields, k)
	}

	now := time.Now().UTC()
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := generateID(description)
		exists, err := r.store.Exists(id)
		if err != nil {
			return model.EndpointInfo{}, fmt.Errorf("checking endpoint id availability: %w", err)
		}
		if exists {
			lastErr = fmt.Errorf("endpoint id %q already taken", id)
			continue
		}

		rec := model.EndpointRecord{
			EndpointID:       id,
			JSONData:         parsed.Data,
			Description:      description,
			SourceURLs:       sourceURLs,
			RecordsCount:     parsed.Meta.RecordsParsed,
			Fields:           fields,
			ParsingTimestamp: parsed.Meta.Timestamp,
			CreatedAt:        now,
		}
		if rec.ParsingTimestamp.IsZero() {
			rec.ParsingTimestamp = now
		}

		if err := r.store.Insert(rec); err != nil {
			lastErr = err
			continue
		}

		return model.EndpointInfo{
			EndpointID:   id,
			AccessURL:    fmt.Sprintf("%s/api/data/%s", r.baseURL, id),
			Description:  description,
			CreatedAt:    now,
			RecordsCount: rec.RecordsCount,
		}, nil
	}

	return model.EndpointInfo{}, apperrors.Wrap(apperrors.KindStoreCreation,
		fmt.Sprintf("could not allocate a unique endpoint id after %d attempts", maxCreateAttempts), lastErr)
}

// Get loads a full endpoint record, or store.ErrNotFound if absent.
func (r *Registry) Get(endpointID string) (model.EndpointRecord, error) {
	return r.store.Get(endpointID)
}

// List returns all endpoint summaries, newest first.
func (r *Registry) List() ([]model.EndpointInfo, error) {
	infos, err := r.store.List()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		infos[i].AccessURL = fmt.Sprintf("%s/api/data/%s", r.baseURL, infos[i].EndpointID)
	}
	return infos, nil
}

// Delete removes an endpoint, returning store.ErrNotFound if absent.
func (r *Registry) Delete(endpointID string) error {
	return r.store.Delete(endpointID)
}

// generateID builds a slug from the description's meaningful tokens plus a
// random 4-char suffix, per spec: lower-case, stop-words stripped, first
// two or three tokens joined by "-".
func generateID(description string) string {
	tokens := tokenize(description)

	var meaningful []string
	for _, t := range tokens {
		if stopWords[t] || t == "" {
			continue
		}
		meaningful = append(meaningful, t)
		if len(meaningful) == 3 {
			break
		}
	}
	if len(meaningful) == 0 {
		meaningful = []string{"endpoint"}
	}

	return strings.Join(meaningful, "-") + "-" + idgen.Suffix(4)
}

func tokenize(s string) []string {
	lower := strings.ToLower(s)
	var sb strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteRune(' ')
		}
	}
	return strings.Fields(sb.String())
}
