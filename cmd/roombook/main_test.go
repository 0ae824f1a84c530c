package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/roombook/internal/catalog"
	"github.com/example/roombook/internal/config"
	"github.com/example/roombook/internal/persistence/sqlite"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "roombook.db")
	t.Setenv(config.FileEnv, "")
	t.Setenv("ROOMBOOK_STORE_DRIVER", "sqlite")
	t.Setenv("ROOMBOOK_SQLITE_DSN", dsn)
	t.Setenv("ROOMBOOK_LOG_LEVEL", "error")
	return dsn
}

func TestMigrateAndUsersAdd(t *testing.T) {
	dsn := useSQLite(t)

	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")

	out, err = runCLI(t, "users", "add", "--id", "alice", "--name", "Alice", "--role", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "registered alice (Alice) as ADMIN")

	_, err = runCLI(t, "users", "add", "--id", "alice", "--name", "Again")
	assert.Error(t, err, "duplicate ids are rejected")

	_, err = runCLI(t, "users", "add", "--id", "bob", "--name", "Bob", "--role", "owner")
	assert.Error(t, err, "unknown roles are rejected")

	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(dsn), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ADMIN", users[0].Role)
}

func TestUsersAddRequiresFlags(t *testing.T) {
	useSQLite(t)
	_, err := runCLI(t, "users", "add", "--id", "carol")
	assert.Error(t, err)
}

func TestInvalidConfigurationFailsBeforeRunning(t *testing.T) {
	useSQLite(t)
	t.Setenv("ROOMBOOK_STORE_DRIVER", "mysql")

	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROOMBOOK_STORE_DRIVER")
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.StoreDriver = config.DriverMemory
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func send(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

var adminHeaders = map[string]string{"X-Subject-Id": "root", "X-Subject-Role": "ADMIN"}

func TestNewAppWithMemoryStore(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	assert.Equal(t, http.StatusOK, send(t, a.handler, http.MethodGet, "/healthz", "", nil).Code)

	rec := send(t, a.handler, http.MethodPost, "/resources", `{"name":"Atlas","capacity":4,"category":"meeting_room"}`, adminHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(t, a.handler, http.MethodGet, "/resources", "", nil)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = send(t, a.handler, http.MethodGet, "/resources", "", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestNewAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	rec := send(t, a.handler, http.MethodPost, "/resources", `{"name":"Atlas","capacity":4,"category":"meeting_room"}`, adminHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = send(t, a.handler, http.MethodGet, "/resources", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists(catalog.ResourcesKey), "catalog snapshot is stored in redis")

	rec = send(t, a.handler, http.MethodGet, "/resources", "", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}

func TestNewAppStartsWithUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = "127.0.0.1:1"

	a, err := newApp(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })

	rec := send(t, a.handler, http.MethodGet, "/resources", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "catalog falls back to the store")
}
