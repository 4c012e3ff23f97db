package store

import (
	"testing"
	"time"

	"github.com/usercommon/scrapeapi/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) model.EndpointRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return model.EndpointRecord{
		EndpointID:       id,
		JSONData:         map[string]any{"title": "Widget"},
		Description:      "widget listings",
		SourceURLs:       []string{"https://a.example"},
		RecordsCount:     1,
		Fields:           []string{"title"},
		ParsingTimestamp: now,
		CreatedAt:        now,
	}
}

func TestInsertAndGetRoundTrips(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord("widgets-ab12")

	if err := s.Insert(rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := s.Get("widgets-ab12")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Description != rec.Description || got.RecordsCount != 1 {
		t.Fatalf("unexpected round-tripped record: %+v", got)
	}
	if got.JSONData["title"] != "Widget" {
		t.Fatalf("expected json_data to round-trip, got %+v", got.JSONData)
	}
	if len(got.SourceURLs) != 1 || got.SourceURLs[0] != "https://a.example" {
		t.Fatalf("expected source_urls to round-trip, got %+v", got.SourceURLs)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord("exists-1")
	if err := s.Insert(rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	ok, err := s.Exists("exists-1")
	if err != nil || !ok {
		t.Fatalf("expected exists=true, err=nil, got %v, %v", ok, err)
	}
	ok, err = s.Exists("not-there")
	if err != nil || ok {
		t.Fatalf("expected exists=false, err=nil, got %v, %v", ok, err)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	older := sampleRecord("older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := sampleRecord("newer")
	newer.CreatedAt = time.Now().UTC()

	if err := s.Insert(older); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(newer); err != nil {
		t.Fatal(err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].EndpointID != "newer" || list[1].EndpointID != "older" {
		t.Fatalf("expected newest-first ordering, got %+v", list)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	s := openTestStore(t)
	rec := sampleRecord("to-delete")
	if err := s.Insert(rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("to-delete"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get("to-delete"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.Delete("nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
