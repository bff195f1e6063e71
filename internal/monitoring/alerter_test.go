package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prequal-cli/internal/config"
)

func TestFetchExhausted_PostsAlert(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.FetchExhausted(context.Background(), "app-1", "tax_registry", 3, eris.New("status 503"))

	assert.Equal(t, AlertFetchRetriesExhausted, received.Type)
	assert.Equal(t, "high", received.Severity)
	assert.Contains(t, received.Message, "tax_registry")
	assert.Contains(t, received.Message, "manual entry")
	assert.Equal(t, "app-1", received.Details["application_id"])
	assert.Equal(t, "status 503", received.Details["error"])
	assert.False(t, received.Timestamp.IsZero())
}

func TestSyncExhausted_PostsAlert(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.SyncExhausted(context.Background(), "app-1", "crm", 5, eris.New("status 502"))

	assert.Equal(t, AlertSyncRetriesExhausted, received.Type)
	assert.Contains(t, received.Message, "manual retry required")
	assert.Equal(t, "crm", received.Details["integrator"])
}

func TestContractViolation_PostsAlert(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.ContractViolation(context.Background(), "app-1", "trade_register", eris.New("register_entry is null"))

	assert.Equal(t, AlertProviderContract, received.Type)
	assert.Contains(t, received.Message, "trade_register")
}

func TestAlerter_NoWebhookURLIsNoOp(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	// Must not panic or block.
	a.FetchExhausted(context.Background(), "app-1", "tax_registry", 3, eris.New("boom"))
}

func TestAlerter_NilReceiverIsNoOp(t *testing.T) {
	var a *Alerter
	a.send(context.Background(), Alert{Type: AlertProviderContract})
}

func TestAlerter_ReceiverErrorDoesNotPropagate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	a.SyncExhausted(context.Background(), "app-1", "crm", 5, eris.New("boom"))
	assert.Equal(t, int32(1), hits.Load())
}
