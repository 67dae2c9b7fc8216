package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gostonefire/hashdb"
	"github.com/gostonefire/hashdb/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *hashdb.DB, string) {
	path := filepath.Join(t.TempDir(), "server.hdb")
	db := hashdb.New()
	require.NoError(t, db.Tune(64, -1, -1, 0), "tunes")
	require.NoError(t, db.Open(path, hashdb.Writer|hashdb.Create), "opens")
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(config.Config{Addr: ":0"}, db, logger), db, path
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestEntries(t *testing.T) {
	t.Run("put, get, append and delete", func(t *testing.T) {
		// Prepare
		s, _, _ := newTestServer(t)

		// Execute
		put := do(t, s, http.MethodPut, "/db/foo", "value")
		get := do(t, s, http.MethodGet, "/db/foo", "")
		patch := do(t, s, http.MethodPatch, "/db/foo", "-more")
		getPatched := do(t, s, http.MethodGet, "/db/foo", "")
		del := do(t, s, http.MethodDelete, "/db/foo", "")
		getDeleted := do(t, s, http.MethodGet, "/db/foo", "")
		delMissing := do(t, s, http.MethodDelete, "/db/foo", "")

		// Check
		assert.Equal(t, http.StatusNoContent, put.Code, "put")
		assert.Equal(t, http.StatusOK, get.Code, "get")
		assert.Equal(t, "value", get.Body.String(), "get body")
		assert.Equal(t, http.StatusNoContent, patch.Code, "patch")
		assert.Equal(t, "value-more", getPatched.Body.String(), "appended body")
		assert.Equal(t, http.StatusNoContent, del.Code, "delete")
		assert.Equal(t, http.StatusNotFound, getDeleted.Code, "deleted key")
		assert.Equal(t, http.StatusNotFound, delMissing.Code, "delete missing key")
	})

	t.Run("post with keep", func(t *testing.T) {
		// Prepare
		s, _, _ := newTestServer(t)

		// Execute
		first := do(t, s, http.MethodPost, "/db/key?keep=1", "first")
		second := do(t, s, http.MethodPost, "/db/key?keep=1", "second")
		overwrite := do(t, s, http.MethodPost, "/db/key", "third")
		get := do(t, s, http.MethodGet, "/db/key", "")

		// Check
		assert.Equal(t, http.StatusCreated, first.Code, "stored")
		assert.Equal(t, http.StatusConflict, second.Code, "kept")
		assert.Equal(t, http.StatusCreated, overwrite.Code, "overwritten")
		assert.Equal(t, "third", get.Body.String(), "latest value")
	})

	t.Run("read only file", func(t *testing.T) {
		// Prepare
		s, db, path := newTestServer(t)
		require.NoError(t, db.Put([]byte("key"), []byte("value")), "puts")
		require.NoError(t, db.Close(), "closes")
		require.NoError(t, db.Open(path, hashdb.Reader), "reopens for reading")

		// Execute
		put := do(t, s, http.MethodPut, "/db/key", "other")
		get := do(t, s, http.MethodGet, "/db/key", "")

		// Check
		assert.Equal(t, http.StatusForbidden, put.Code, "put refused")
		assert.Equal(t, "value", get.Body.String(), "value kept")
	})

	t.Run("closed db", func(t *testing.T) {
		// Prepare
		s, db, _ := newTestServer(t)
		require.NoError(t, db.Close(), "closes")

		// Execute
		get := do(t, s, http.MethodGet, "/db/key", "")

		// Check
		assert.Equal(t, http.StatusServiceUnavailable, get.Code, "unavailable")
	})
}

func TestListKeysAndStat(t *testing.T) {
	t.Run("lists keys and stats", func(t *testing.T) {
		// Prepare
		s, db, _ := newTestServer(t)
		for _, k := range []string{"a", "b", "c"} {
			require.NoError(t, db.Put([]byte(k), []byte("v")), "puts")
		}

		// Execute
		all := do(t, s, http.MethodGet, "/db", "")
		limited := do(t, s, http.MethodGet, "/db?limit=2", "")
		badLimit := do(t, s, http.MethodGet, "/db?limit=x", "")
		stat := do(t, s, http.MethodGet, "/stat", "")
		health := do(t, s, http.MethodGet, "/health", "")

		// Check
		var keys KeysResponse
		assert.Equal(t, http.StatusOK, all.Code, "list")
		assert.NoError(t, json.Unmarshal(all.Body.Bytes(), &keys), "decodes keys")
		assert.ElementsMatch(t, []string{"a", "b", "c"}, keys.Keys, "all keys")
		assert.False(t, keys.Truncated, "complete")

		var part KeysResponse
		assert.NoError(t, json.Unmarshal(limited.Body.Bytes(), &part), "decodes limited keys")
		assert.Len(t, part.Keys, 2, "limited")
		assert.True(t, part.Truncated, "truncated")
		assert.Equal(t, http.StatusBadRequest, badLimit.Code, "bad limit")

		var st StatResponse
		assert.Equal(t, http.StatusOK, stat.Code, "stat")
		assert.NoError(t, json.Unmarshal(stat.Body.Bytes(), &st), "decodes stat")
		assert.Equal(t, int64(3), st.Records, "records")
		assert.Equal(t, int64(64), st.Buckets, "buckets")
		assert.True(t, st.Writable, "writable")

		assert.Equal(t, "ok", health.Body.String(), "healthy")
	})
}

func TestWriteError(t *testing.T) {
	t.Run("maps error codes to statuses", func(t *testing.T) {
		// Prepare
		s, _, _ := newTestServer(t)
		cases := []struct {
			err    error
			status int
		}{
			{hashdb.ErrInvalidArgument, http.StatusBadRequest},
			{hashdb.ErrReadOnly, http.StatusForbidden},
			{hashdb.ErrWouldBlock, http.StatusServiceUnavailable},
			{hashdb.ErrInvalidState, http.StatusServiceUnavailable},
			{hashdb.ErrOutOfSpace, http.StatusInsufficientStorage},
			{hashdb.ErrCorruptFile, http.StatusInternalServerError},
			{hashdb.ErrIOError, http.StatusInternalServerError},
			{errors.New("plain"), http.StatusInternalServerError},
		}

		for _, c := range cases {
			// Execute
			rec := httptest.NewRecorder()
			s.writeError(rec, c.err)

			// Check
			assert.Equal(t, c.status, rec.Code, "status for %v", c.err)
		}
	})
}
