package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/store"
)

func newTestEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return &env{Store: st}
}

// testRouter mounts the handlers that do not need a running Temporal client.
func testRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Post("/applications", handleCreate(e))
	r.Get("/applications/{id}", handleGet(e))
	r.Post("/applications/{id}/fetch", handleFetch(e, nil))
	return r
}

func TestHandleCreate(t *testing.T) {
	r := testRouter(newTestEnv(t))

	body, _ := json.Marshal(map[string]string{"company_id": "DE-123456", "name": "Acme Bau GmbH"})
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var app model.Application
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &app))
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "DE-123456", app.CompanyID)
	assert.Equal(t, model.ApplicationDraft, app.Status)
}

func TestHandleCreate_MissingCompanyID(t *testing.T) {
	r := testRouter(newTestEnv(t))

	body, _ := json.Marshal(map[string]string{"name": "Acme Bau GmbH"})
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "company_id is required")
}

func TestHandleCreate_InvalidBody(t *testing.T) {
	r := testRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleGet(t *testing.T) {
	e := newTestEnv(t)
	app := &model.Application{CompanyID: "DE-1"}
	require.NoError(t, e.Store.CreateApplication(context.Background(), app))
	r := testRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/applications/"+app.ID, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got model.Application
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, app.ID, got.ID)
	assert.Equal(t, "DE-1", got.CompanyID)
}

func TestHandleGet_NotFound(t *testing.T) {
	r := testRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/applications/missing", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleFetch_CompletedApplicationConflicts(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	app := &model.Application{CompanyID: "DE-1"}
	require.NoError(t, e.Store.CreateApplication(ctx, app))
	require.NoError(t, e.Store.CompleteApplication(ctx, app.ID))
	r := testRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/applications/"+app.ID+"/fetch", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already completed")
}

func TestHandleFetch_UnknownApplication(t *testing.T) {
	r := testRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/applications/missing/fetch", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
