package publisher

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServesSnapshot(t *testing.T) {
	payload := []byte(`{"last_updated":1741943213.5,"symbol_mapping":[],"positions":[]}`)
	srv := NewServer(0, func() []byte { return payload }, quietLogger())

	for _, path := range []string{"/", "/state", "/" + StateFilename} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "GET %s", path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, payload, rec.Body.Bytes())
	}
}

func TestServer_EmptyObjectBeforeFirstPoll(t *testing.T) {
	srv := NewServer(0, func() []byte { return nil }, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}

func TestServer_UnknownPath(t *testing.T) {
	srv := NewServer(0, func() []byte { return []byte("{}") }, quietLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := NewServer(0, func() []byte { return []byte("{}") }, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/state", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
