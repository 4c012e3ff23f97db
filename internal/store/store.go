// Package store persists published endpoints in an embedded SQLite
// database, grounded on kalambet-tbyd's internal/storage/sqlite.go
// (WAL mode, embedded migrations, sql.ErrNoRows -> ErrNotFound), but using
// jmoiron/sqlx for struct scanning.
package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/usercommon/scrapeapi/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a lookup by endpoint id matches no row.
var ErrNotFound = errors.New("store: endpoint not found")

// Store wraps a SQLite database holding published endpoints.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the SQLite database at path and applies pending
// migrations. Pass ":memory:" for an in-memory database, used by tests.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.Get(&exists, "SELECT COUNT(*) FROM schema_version WHERE version = ?", version); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

// Insert persists a new endpoint record, serializing its structured fields
// to JSON for storage per model.EndpointRecord's Raw/non-Raw split.
func (s *Store) Insert(rec model.EndpointRecord) error {
	jsonData, err := json.Marshal(rec.JSONData)
	if err != nil {
		return fmt.Errorf("marshalling json_data: %w", err)
	}
	sourceURLs, err := json.Marshal(rec.SourceURLs)
	if err != nil {
		return fmt.Errorf("marshalling source_urls: %w", err)
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO endpoints (endpoint_id, json_data, description, source_urls, records_count, fields, parsing_timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EndpointID, string(jsonData), rec.Description, string(sourceURLs),
		rec.RecordsCount, string(fields), rec.ParsingTimestamp.UTC(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting endpoint %s: %w", rec.EndpointID, err)
	}
	return nil
}

// Get loads one endpoint by id, decoding its JSON columns back into
// structured fields.
func (s *Store) Get(endpointID string) (model.EndpointRecord, error) {
	var row endpointRow
	err := s.db.Get(&row, `
		SELECT endpoint_id, json_data, description, source_urls, records_count, fields, parsing_timestamp, created_at
		FROM endpoints WHERE endpoint_id = ?`, endpointID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EndpointRecord{}, ErrNotFound
	}
	if err != nil {
		return model.EndpointRecord{}, fmt.Errorf("loading endpoint %s: %w", endpointID, err)
	}
	return row.toModel()
}

// Exists reports whether an endpoint id is already taken, used by the
// registry's id-generation retry loop.
func (s *Store) Exists(endpointID string) (bool, error) {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM endpoints WHERE endpoint_id = ?", endpointID); err != nil {
		return false, fmt.Errorf("checking endpoint existence: %w", err)
	}
	return count > 0, nil
}

// List returns endpoint summaries ordered newest first.
func (s *Store) List() ([]model.EndpointInfo, error) {
	var rows []endpointRow
	if err := s.db.Select(&rows, `
		SELECT endpoint_id, json_data, description, source_urls, records_count, fields, parsing_timestamp, created_at
		FROM endpoints ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	infos := make([]model.EndpointInfo, 0, len(rows))
	for _, r := range rows {
		infos = append(infos, model.EndpointInfo{
			EndpointID:   r.EndpointID,
			Description:  r.Description,
			CreatedAt:    r.CreatedAt,
			RecordsCount: r.RecordsCount,
		})
	}
	return infos, nil
}

// Delete removes an endpoint by id. It returns ErrNotFound if no row matched.
func (s *Store) Delete(endpointID string) error {
	res, err := s.db.Exec("DELETE FROM endpoints WHERE endpoint_id = ?", endpointID)
	if err != nil {
		return fmt.Errorf("deleting endpoint %s: %w", endpointID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type endpointRow struct {
	EndpointID       string    `db:"endpoint_id"`
	JSONData         string    `db:"json_data"`
	Description      string    `db:"description"`
	SourceURLs       string    `db:"source_urls"`
	RecordsCount     int       `db:"records_count"`
	Fields           string    `db:"fields"`
	ParsingTimestamp time.Time `db:"parsing_timestamp"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r endpointRow) toModel() (model.EndpointRecord, error) {
	rec := model.EndpointRecord{
		EndpointID:       r.EndpointID,
		JSONDataRaw:      r.JSONData,
		Description:      r.Description,
		SourceURLsRaw:    r.SourceURLs,
		RecordsCount:     r.RecordsCount,
		FieldsRaw:        r.Fields,
		ParsingTimestamp: r.ParsingTimestamp,
		CreatedAt:        r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.JSONData), &rec.JSONData); err != nil {
		return model.EndpointRecord{}, fmt.Errorf("decoding json_data: %w", err)
	}
	if err := json.Unmarshal([]byte(r.SourceURLs), &rec.SourceURLs); err != nil {
		return model.EndpointRecord{}, fmt.Errorf("decoding source_urls: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Fields), &rec.Fields); err != nil {
		return model.EndpointRecord{}, fmt.Errorf("decoding fields: %w", err)
	}
	return rec, nil
}
