package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/pipeline"
	"github.com/sells-group/prequal-cli/internal/resilience"
)

func newFetchEnv(t *testing.T, providerURL string) *env {
	t.Helper()
	e := newTestEnv(t)
	e.Attrs = model.NewAttributeRegistry([]model.Attribute{
		{Key: "tax_clearance_status", Label: "Tax clearance", Type: "text", APIName: "tax_registry", APIKey: "clearance_status"},
		{Key: "tax_valid_until", Label: "Valid until", Type: "text", APIName: "tax_registry", APIKey: "valid_until"},
	})
	pcfg := &config.Config{Providers: map[string]config.ProviderConfig{
		"tax_registry": {BaseURL: providerURL, Token: "test-token"},
	}}
	e.Registry = pipeline.DefaultRegistry()
	e.Runner = pipeline.NewRunner(e.Registry, pcfg, e.Store, e.Attrs)
	e.Retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     1,
	}
	return e
}

func TestFetchInProcess_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data":{"clearance_status":"clear","valid_until":"2027-01-31"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	e := newFetchEnv(t, srv.URL)
	ctx := context.Background()
	app := &model.Application{CompanyID: "DE-1"}
	require.NoError(t, e.Store.CreateApplication(ctx, app))

	var out bytes.Buffer
	require.NoError(t, fetchInProcess(ctx, &out, e, app, []string{"tax_registry"}))
	assert.Equal(t, int32(3), hits.Load())

	var summary map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, "completed", summary["tax_registry"])

	status, err := e.Store.GetFetchStatus(ctx, app.ID, "tax_registry")
	require.NoError(t, err)
	assert.Equal(t, model.FetchCompleted, status.State)
	assert.Equal(t, 2, status.FieldsFilled)
}

func TestFetchInProcess_FatalFailureRollsBackWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := newFetchEnv(t, srv.URL)
	ctx := context.Background()
	app := &model.Application{CompanyID: "DE-1"}
	require.NoError(t, e.Store.CreateApplication(ctx, app))

	var out bytes.Buffer
	require.NoError(t, fetchInProcess(ctx, &out, e, app, []string{"tax_registry"}))
	assert.Equal(t, int32(1), hits.Load())

	status, err := e.Store.GetFetchStatus(ctx, app.ID, "tax_registry")
	require.NoError(t, err)
	assert.Equal(t, model.FetchFailed, status.State)

	resp, err := e.Store.GetResponse(ctx, app.ID, "tax_clearance_status")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, model.SourceManualAfterAPIFailure, resp.Source)
}

func TestFetchInProcess_ExhaustedRetriesRollBack(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newFetchEnv(t, srv.URL)
	ctx := context.Background()
	app := &model.Application{CompanyID: "DE-1"}
	require.NoError(t, e.Store.CreateApplication(ctx, app))

	var out bytes.Buffer
	require.NoError(t, fetchInProcess(ctx, &out, e, app, []string{"tax_registry"}))
	assert.Equal(t, int32(3), hits.Load())

	status, err := e.Store.GetFetchStatus(ctx, app.ID, "tax_registry")
	require.NoError(t, err)
	assert.Equal(t, model.FetchFailed, status.State)
}
