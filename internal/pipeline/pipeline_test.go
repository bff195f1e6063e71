package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prequal-cli/internal/config"
)

func taxRunner(t *testing.T, srv *httptest.Server, store *fakeResponseStore) *Runner {
	t.Helper()
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		ProviderTaxRegistry: {BaseURL: srv.URL, Token: "test-token"},
	}}
	return NewRunner(DefaultRegistry(), cfg, store, mapperRegistry())
}

func TestRun_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/companies/DE-1/clearance", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"clearance_status":"clear","valid_until":"2027-01-31"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	store := newFakeResponseStore()
	runner := taxRunner(t, srv, store)

	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.False(t, res.Failed())
	assert.Equal(t, 2, res.FieldsFilled)
	assert.Equal(t, "clear", store.responses["tax_clearance_status"].Value)
	assert.Equal(t, "2027-01-31", store.responses["tax_valid_until"].Value)
}

func TestRun_UnknownProvider(t *testing.T) {
	runner := NewRunner(DefaultRegistry(), &config.Config{}, newFakeResponseStore(), mapperRegistry())
	res := runner.Run(context.Background(), "land_registry", Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindContract, res.Err.Kind)
	assert.False(t, Retryable(res.Err))
}

func TestRun_MissingCredentialsFailFast(t *testing.T) {
	// tax_registry requires auth; no token configured.
	cfg := &config.Config{Providers: map[string]config.ProviderConfig{
		ProviderTaxRegistry: {BaseURL: "http://localhost:1"},
	}}
	runner := NewRunner(DefaultRegistry(), cfg, newFakeResponseStore(), mapperRegistry())
	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindCredentials, res.Err.Kind)
	assert.Equal(t, StageRequest, res.Err.Stage)
	assert.False(t, Retryable(res.Err))
}

func TestRun_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	runner := taxRunner(t, srv, newFakeResponseStore())
	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindHTTP, res.Err.Kind)
	assert.Equal(t, http.StatusUnauthorized, res.Err.StatusCode)
	assert.False(t, Retryable(res.Err))
}

func TestRun_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	runner := taxRunner(t, srv, newFakeResponseStore())
	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindHTTP, res.Err.Kind)
	assert.True(t, Retryable(res.Err))
}

func TestRun_ConnectionRefusedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens here anymore

	runner := taxRunner(t, srv, newFakeResponseStore())
	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindTransport, res.Err.Kind)
	assert.True(t, Retryable(res.Err))
}

func TestRun_ContractViolationOnUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>upstream maintenance</html>`)) //nolint:errcheck
	}))
	defer srv.Close()

	runner := taxRunner(t, srv, newFakeResponseStore())
	res := runner.Run(context.Background(), ProviderTaxRegistry, Input{ApplicationID: "app-1", CompanyID: "DE-1"})
	require.True(t, res.Failed())
	assert.Equal(t, KindContract, res.Err.Kind)
	assert.Equal(t, StageBuild, res.Err.Stage)
	assert.False(t, Retryable(res.Err))
}

func TestProviders_MergesPensionFunds(t *testing.T) {
	runner := NewRunner(DefaultRegistry(), &config.Config{}, newFakeResponseStore(), mapperRegistry())
	names := runner.Providers()

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	assert.True(t, seen[ProviderPensionFunds])
	assert.False(t, seen[ProviderPensionFundA])
	assert.False(t, seen[ProviderPensionFundB])
	assert.True(t, seen[ProviderTaxRegistry])
}
