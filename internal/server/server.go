// Package server exposes the four-route HTTP API over the endpoint
// registry, grounded on kalambet-tbyd's internal/api/ingest.go chi-router
// and JSON-error-response style.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/usercommon/scrapeapi/internal/apperrors"
	"github.com/usercommon/scrapeapi/internal/model"
	"github.com/usercommon/scrapeapi/internal/registry"
	"github.com/usercommon/scrapeapi/internal/store"
)

// Deps are the registry dependencies the handlers need.
type Deps struct {
	Registry *registry.Registry
}

// NewRouter builds the chi router exposing the four documented routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth())
	r.Get("/api/data/{endpoint_id}", handleGetData(deps))
	r.Get("/api/endpoints", handleListEndpoints(deps))
	r.Delete("/api/endpoints/{endpoint_id}", handleDeleteEndpoint(deps))
	return r
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "api-endpoint-server",
		})
	}
}

func handleGetData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "endpoint_id")

		rec, err := deps.Registry.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":       "Endpoint not found",
				"endpoint_id": id,
			})
			return
		}
		if err != nil {
			writeAppError(w, err)
			return
		}

		if r.URL.Query().Get("metadata") == "true" {
			writeJSON(w, http.StatusOK, map[string]any{
				"data": rec.JSONData,
				"metadata": map[string]any{
					"description":       rec.Description,
					"source_urls":       rec.SourceURLs,
					"records_count":     rec.RecordsCount,
					"fields":            rec.Fields,
					"parsing_timestamp": rec.ParsingTimestamp,
				},
				"endpoint_id": rec.EndpointID,
				"created_at":  rec.CreatedAt,
			})
			return
		}

		writeJSON(w, http.StatusOK, rec.JSONData)
	}
}

func handleListEndpoints(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoints, err := deps.Registry.List()
		if err != nil {
			writeAppError(w, err)
			return
		}
		if endpoints == nil {
			endpoints = []model.EndpointInfo{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"endpoints": endpoints})
	}
}

func handleDeleteEndpoint(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "endpoint_id")

		err := deps.Registry.Delete(id)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":       "Endpoint not found",
				"endpoint_id": id,
			})
			return
		}
		if err != nil {
			writeAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"message":     "Endpoint deleted successfully",
			"endpoint_id": id,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response body failed", "error", err)
	}
}

// writeAppError never leaks internal detail: a 5xx response body carries
// only the generic "Internal server error" message, while a 4xx body
// carries the error's own message.
func writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.StatusCode(err)
	msg := "Internal server error"
	if status < 500 {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListenWithFallback binds the first free port starting at basePort,
// trying up to maxFallbacks successive ports, matching spec's port
// reservation behavior for local development.
func ListenWithFallback(basePort, maxFallbacks int, handler http.Handler) (net.Listener, *http.Server, error) {
	var lastErr error
	for i := 0; i <= maxFallbacks; i++ {
		port := basePort + i
		addr := fmt.Sprintf(":%d", port)
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			srv := &http.Server{Handler: handler}
			return ln, srv, nil
		}
		lastErr = err
		slog.Warn("port unavailable, trying fallback", "port", port, "error", err)
	}
	return nil, nil, fmt.Errorf("no available port in range [%d, %d]: %w", basePort, basePort+maxFallbacks, lastErr)
}
