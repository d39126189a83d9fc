package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperengineering/ficha/internal/schema"
)

// SQLiteStore is the SQLite-backed schema and response store.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	// writeMu serializes read-then-write transactions; SQLite cannot upgrade
	// concurrent deferred transactions to writers.
	writeMu sync.Mutex

	snapshotMu   sync.Mutex
	lastSnapshot *time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath.
// It enables WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Schemas ---

// GetSchema returns the latest version of a schema.
func (s *SQLiteStore) GetSchema(ctx context.Context, id string) (schema.FormSchema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, body FROM form_schemas
		WHERE id = ?
		ORDER BY version DESC
		LIMIT 1
	`, id)
	fs, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.FormSchema{}, fmt.Errorf("schema %q: %w", id, ErrNotFound)
	}
	return fs, err
}

// GetSchemaVersion returns one version of a schema.
func (s *SQLiteStore) GetSchemaVersion(ctx context.Context, id string, version int) (schema.FormSchema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT version, body FROM form_schemas
		WHERE id = ? AND version = ?
	`, id, version)
	fs, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.FormSchema{}, fmt.Errorf("schema %q version %d: %w", id, version, ErrNotFound)
	}
	return fs, err
}

func scanSchema(row *sql.Row) (schema.FormSchema, error) {
	var version int
	var body string
	if err := row.Scan(&version, &body); err != nil {
		return schema.FormSchema{}, err
	}

	var fs schema.FormSchema
	if err := json.Unmarshal([]byte(body), &fs); err != nil {
		return schema.FormSchema{}, fmt.Errorf("parse schema body: %w", err)
	}
	fs.Version = version
	return fs, nil
}

// PutSchema inserts s as the next version of its id.
func (s *SQLiteStore) PutSchema(ctx context.Context, fs schema.FormSchema) (schema.FormSchema, error) {
	if fs.ID == "" {
		return schema.FormSchema{}, fmt.Errorf("%w: schema id is required", ErrInvalidRecord)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM form_schemas WHERE id = ?`, fs.ID,
	).Scan(&current); err != nil {
		return schema.FormSchema{}, fmt.Errorf("read current version: %w", err)
	}

	stored := schema.Clone(fs)
	stored.Version = current + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("marshal schema: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO form_schemas (id, version, owner_project_id, title, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.Version, stored.OwnerProjectID, stored.Title, string(body), formatTime(time.Now()))
	if err != nil {
		return schema.FormSchema{}, fmt.Errorf("insert schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return schema.FormSchema{}, fmt.Errorf("commit transaction: %w", err)
	}
	return stored, nil
}

// ListSchemas returns the latest version of each schema, ordered by id.
func (s *SQLiteStore) ListSchemas(ctx context.Context, ownerProjectID string) ([]SchemaSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.owner_project_id, f.title, f.version, f.created_at
		FROM form_schemas f
		JOIN (SELECT id, MAX(version) AS version FROM form_schemas GROUP BY id) latest
		  ON latest.id = f.id AND latest.version = f.version
		WHERE ? = '' OR f.owner_project_id = ?
		ORDER BY f.id
	`, ownerProjectID, ownerProjectID)
	if err != nil {
		return nil, fmt.Errorf("query schemas: %w", err)
	}
	defer rows.Close()

	out := []SchemaSummary{}
	for rows.Next() {
		var sum SchemaSummary
		var updatedAt string
		if err := rows.Scan(&sum.ID, &sum.OwnerProjectID, &sum.Title, &sum.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sum.UpdatedAt = parseTime(updatedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// --- Responses ---

const responseColumns = `id, schema_id, schema_version, values_json, created_at, updated_at`

// GetResponse returns a response by id.
func (s *SQLiteStore) GetResponse(ctx context.Context, id string) (Response, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE id = ?`, id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Response{}, fmt.Errorf("response %q: %w", id, ErrNotFound)
	}
	return r, err
}

// PutResponse creates or replaces a response.
func (s *SQLiteStore) PutResponse(ctx context.Context, r Response) (Response, error) {
	if r.ID == "" || r.SchemaID == "" {
		return Response{}, fmt.Errorf("%w: response id and schema id are required", ErrInvalidRecord)
	}
	values := r.Values
	if values == nil {
		values = schema.Values{}
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return Response{}, fmt.Errorf("marshal values: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Response{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM form_schemas WHERE id = ? AND version = ?`, r.SchemaID, r.SchemaVersion,
	).Scan(&exists); err != nil {
		return Response{}, fmt.Errorf("check schema version: %w", err)
	}
	if exists == 0 {
		return Response{}, fmt.Errorf("schema %q version %d: %w", r.SchemaID, r.SchemaVersion, ErrNotFound)
	}

	now := time.Now().UTC().Truncate(time.Second)
	r.CreatedAt, r.UpdatedAt = now, now

	var existingSchema, createdAt string
	err = tx.QueryRowContext(ctx,
		`SELECT schema_id, created_at FROM form_responses WHERE id = ?`, r.ID,
	).Scan(&existingSchema, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO form_responses (`+responseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.SchemaID, r.SchemaVersion, string(valuesJSON), formatTime(now), formatTime(now))
		if err != nil {
			return Response{}, fmt.Errorf("insert response: %w", err)
		}
	case err != nil:
		return Response{}, fmt.Errorf("read response: %w", err)
	case existingSchema != r.SchemaID:
		return Response{}, fmt.Errorf("%w: response %q belongs to schema %q", ErrConflict, r.ID, existingSchema)
	default:
		r.CreatedAt = parseTime(createdAt)
		_, err = tx.ExecContext(ctx, `
			UPDATE form_responses
			SET schema_version = ?, values_json = ?, updated_at = ?
			WHERE id = ?
		`, r.SchemaVersion, string(valuesJSON), formatTime(now), r.ID)
		if err != nil {
			return Response{}, fmt.Errorf("update response: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Response{}, fmt.Errorf("commit transaction: %w", err)
	}
	r.Values = values
	return r, nil
}

// ListResponses returns a schema's responses, oldest first.
func (s *SQLiteStore) ListResponses(ctx context.Context, schemaID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE schema_id = ? ORDER BY created_at, id`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	out := []Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// scanResponse scans a row selected with responseColumns.
func scanResponse(scanner interface{ Scan(...any) error }) (Response, error) {
	var r Response
	var valuesJSON, createdAt, updatedAt string
	if err := scanner.Scan(&r.ID, &r.SchemaID, &r.SchemaVersion, &valuesJSON, &createdAt, &updatedAt); err != nil {
		return Response{}, err
	}
	if err := json.Unmarshal([]byte(valuesJSON), &r.Values); err != nil {
		return Response{}, fmt.Errorf("parse values JSON: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// --- Maintenance ---

// Stats returns schema and response counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT id) FROM form_schemas),
			(SELECT COUNT(*) FROM form_schemas),
			(SELECT COUNT(*) FROM form_responses)
	`).Scan(&st.Schemas, &st.SchemaVersions, &st.Responses)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	if st.MigrationVersion, err = MigrationVersion(s.db); err != nil {
		return nil, err
	}

	s.snapshotMu.Lock()
	st.LastSnapshot = s.lastSnapshot
	s.snapshotMu.Unlock()
	return &st, nil
}

// snapshotPath is where GenerateSnapshot writes its copy of the database.
func (s *SQLiteStore) snapshotPath() string {
	return filepath.Join(filepath.Dir(s.dbPath), "snapshots", "current.db")
}

// GenerateSnapshot writes a consistent copy of the database next to it using
// VACUUM INTO, replacing the previous snapshot atomically.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	if s.dbPath == ":memory:" {
		return fmt.Errorf("%w: in-memory database", ErrSnapshotUnavailable)
	}

	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()

	final := s.snapshotPath()
	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := final + ".tmp"
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	now := time.Now().UTC()
	s.lastSnapshot = &now
	return nil
}

// GetSnapshotPath returns the path of the latest snapshot.
func (s *SQLiteStore) GetSnapshotPath(ctx context.Context) (string, error) {
	if s.dbPath == ":memory:" {
		return "", fmt.Errorf("%w: in-memory database", ErrSnapshotUnavailable)
	}
	path := s.snapshotPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no snapshot generated yet", ErrSnapshotUnavailable)
		}
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	return path, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
