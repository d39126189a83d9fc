package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hyperengineering/ficha/internal/api"
	"github.com/hyperengineering/ficha/internal/session"
	"github.com/hyperengineering/ficha/internal/store"
)

const testAPIKey = "e2e-test-api-key"

// testEnv is an in-process server backed by a SQLite file.
type testEnv struct {
	t      *testing.T
	dbPath string
	store  *store.SQLiteStore
	server *httptest.Server
}

// newTestEnv starts a server on a fresh database in a temp directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	return startEnv(t, filepath.Join(t.TempDir(), "ficha.db"))
}

func startEnv(t *testing.T, dbPath string) *testEnv {
	t.Helper()

	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sessions := session.NewManager(db, db, 0, 0)
	handler := api.NewHandler(db, sessions, nil, testAPIKey, "e2e")
	server := httptest.NewServer(api.NewRouter(handler))

	env := &testEnv{t: t, dbPath: dbPath, store: db, server: server}
	t.Cleanup(env.stop)
	return env
}

func (e *testEnv) stop() {
	if e.server != nil {
		e.server.Close()
		e.server = nil
	}
	if e.store != nil {
		e.store.Close()
		e.store = nil
	}
}

// restart stops the server and starts a new one on the same database file.
// Open sessions do not survive; stored schemas and responses do.
func (e *testEnv) restart() *testEnv {
	e.t.Helper()
	e.stop()
	return startEnv(e.t, e.dbPath)
}

// call sends an authenticated JSON request and decodes a JSON response into
// out when out is non-nil. It fails the test when the status differs.
func (e *testEnv) call(method, path string, body any, wantStatus int, out any) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != wantStatus {
		e.t.Fatalf("%s %s: status = %d, want %d; body: %s", method, path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			e.t.Fatalf("%s %s: decode %s: %v", method, path, data, err)
		}
	}
}

func ptr[T any](v T) *T { return &v }
