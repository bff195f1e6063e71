package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/resilience"
	"github.com/sells-group/prequal-cli/internal/store"
)

// Payload is the application snapshot posted to integrators when an
// application completes. Document bytes stay in our store; integrators get
// filenames and fetch the content over the API if they need it.
type Payload struct {
	ApplicationID string                       `json:"application_id"`
	CompanyID     string                       `json:"company_id"`
	Name          string                       `json:"name,omitempty"`
	CompletedAt   time.Time                    `json:"completed_at"`
	Fields        []PayloadField               `json:"fields"`
	Fetches       map[string]model.FetchStatus `json:"fetches,omitempty"`
}

// PayloadField is one answered form field in the payload.
type PayloadField struct {
	AttributeKey string   `json:"attribute_key"`
	Value        any      `json:"value,omitempty"`
	Source       string   `json:"source"`
	Documents    []string `json:"documents,omitempty"`
}

// Deliverer posts completed applications to every configured integrator and
// drives the application's sync state machine.
type Deliverer struct {
	store  store.Store
	cfg    config.WebhookConfig
	client *http.Client
}

// NewDeliverer creates a Deliverer.
func NewDeliverer(st store.Store, cfg config.WebhookConfig) *Deliverer {
	timeout := 15 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &Deliverer{
		store:  st,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Sync delivers one completed application to all integrators.
//
// The sync state machine guards against concurrent and repeated delivery:
// only pending applications can be picked up, a completed sync is an
// idempotent no-op, and a failed sync has to be reset to pending before it
// runs again. The processing claim is a compare-and-set, so two workers
// racing on the same application resolve to exactly one delivery.
func (d *Deliverer) Sync(ctx context.Context, applicationID string) error {
	app, err := d.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if !app.Finalized() {
		return eris.Errorf("webhook: application %s is not completed", applicationID)
	}

	switch app.SyncState {
	case model.SyncCompleted:
		zap.L().Debug("webhook: already delivered", zap.String("application_id", applicationID))
		return nil
	case model.SyncProcessing:
		zap.L().Debug("webhook: delivery in flight", zap.String("application_id", applicationID))
		return nil
	case model.SyncFailed:
		ok, err := d.store.TransitionSync(ctx, applicationID, model.SyncFailed, model.SyncPending)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	claimed, err := d.store.TransitionSync(ctx, applicationID, model.SyncPending, model.SyncProcessing)
	if err != nil {
		return err
	}
	if !claimed {
		zap.L().Debug("webhook: lost claim race", zap.String("application_id", applicationID))
		return nil
	}

	deliverErr := d.deliverAll(ctx, app)
	if deliverErr != nil {
		if _, terr := d.store.TransitionSync(ctx, applicationID, model.SyncProcessing, model.SyncFailed); terr != nil {
			zap.L().Error("webhook: mark failed", zap.String("application_id", applicationID), zap.Error(terr))
		}
		return deliverErr
	}
	if _, err := d.store.TransitionSync(ctx, applicationID, model.SyncProcessing, model.SyncCompleted); err != nil {
		return err
	}
	zap.L().Info("webhook: application delivered",
		zap.String("application_id", applicationID),
		zap.Int("integrators", len(d.cfg.Integrators)),
	)
	return nil
}

// Retryable reports whether a delivery error is worth another automated
// attempt. HMAC or payload construction problems are not; transport errors
// and retryable HTTP statuses are.
func Retryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// DeliveryError carries the failing integrator and retry hint.
type DeliveryError struct {
	Integrator string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	return "webhook: delivery to " + e.Integrator + " failed: " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (d *Deliverer) deliverAll(ctx context.Context, app *model.Application) error {
	payload, err := d.buildPayload(ctx, app)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal payload")
	}

	var firstErr error
	for name, integrator := range d.cfg.Integrators {
		if err := d.deliverOne(ctx, app.ID, name, integrator, body); err != nil {
			zap.L().Warn("webhook: delivery failed",
				zap.String("application_id", app.ID),
				zap.String("integrator", name),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return firstErr
}

func (d *Deliverer) deliverOne(ctx context.Context, applicationID, name string, integrator config.IntegratorConfig, body []byte) error {
	delivery := &model.Delivery{
		ApplicationID: applicationID,
		Integrator:    name,
		URL:           integrator.URL,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, integrator.URL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Prequal-Signature", Sign(integrator.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		delivery.Error = err.Error()
		d.record(ctx, delivery)
		kind := resilience.ClassifyTransport(err)
		return &DeliveryError{
			Integrator: name,
			Retryable:  resilience.RetryableTransport(kind),
			Err:        err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	delivery.StatusCode = resp.StatusCode
	delivery.ResponseBody = string(respBody)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		delivery.Error = "unexpected status"
		d.record(ctx, delivery)
		return &DeliveryError{
			Integrator: name,
			StatusCode: resp.StatusCode,
			Retryable:  resilience.RetryableStatus(resp.StatusCode),
			Err:        eris.Errorf("webhook: %s returned status %d", name, resp.StatusCode),
		}
	}

	delivery.Succeeded = true
	d.record(ctx, delivery)
	return nil
}

func (d *Deliverer) record(ctx context.Context, delivery *model.Delivery) {
	if err := d.store.RecordDelivery(ctx, delivery); err != nil {
		zap.L().Error("webhook: record delivery",
			zap.String("application_id", delivery.ApplicationID),
			zap.Error(err),
		)
	}
}

func (d *Deliverer) buildPayload(ctx context.Context, app *model.Application) (*Payload, error) {
	responses, err := d.store.ListResponses(ctx, app.ID)
	if err != nil {
		return nil, err
	}

	fields := make([]PayloadField, 0, len(responses))
	for _, resp := range responses {
		field := PayloadField{
			AttributeKey: resp.AttributeKey,
			Value:        resp.Value,
			Source:       string(resp.Source),
		}
		docs, err := d.store.GetResponse(ctx, app.ID, resp.AttributeKey)
		if err != nil {
			return nil, err
		}
		if docs != nil {
			for _, doc := range docs.Documents {
				field.Documents = append(field.Documents, doc.Filename)
			}
		}
		fields = append(fields, field)
	}

	return &Payload{
		ApplicationID: app.ID,
		CompanyID:     app.CompanyID,
		Name:          app.Name,
		CompletedAt:   app.UpdatedAt,
		Fields:        fields,
		Fetches:       app.Fetches,
	}, nil
}

// Sign computes the hex HMAC-SHA256 signature integrators use to verify the
// payload.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature against the body. Exposed for
// integrator-side validation and tests.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
