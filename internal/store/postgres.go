package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prequal-cli/internal/model"
)

// Pool is the minimal pgx pool surface the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS applications (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'draft',
	sync_state TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attributes (
	key      TEXT PRIMARY KEY,
	label    TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL DEFAULT 'text',
	api_name TEXT NOT NULL DEFAULT '',
	api_key  TEXT NOT NULL DEFAULT '',
	required BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS attribute_responses (
	id             BIGSERIAL PRIMARY KEY,
	application_id TEXT NOT NULL REFERENCES applications(id),
	attribute_key  TEXT NOT NULL,
	value          JSONB,
	source         TEXT NOT NULL DEFAULT 'manual',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (application_id, attribute_key)
);

CREATE TABLE IF NOT EXISTS response_documents (
	id             TEXT PRIMARY KEY,
	application_id TEXT NOT NULL,
	attribute_key  TEXT NOT NULL,
	provider       TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	bytes          BYTEA NOT NULL,
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS fetch_statuses (
	application_id TEXT NOT NULL,
	provider       TEXT NOT NULL,
	state          TEXT NOT NULL DEFAULT 'pending',
	fields_filled  INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (application_id, provider)
);

CREATE TABLE IF NOT EXISTS deliveries (
	id             TEXT PRIMARY KEY,
	application_id TEXT NOT NULL,
	integrator     TEXT NOT NULL,
	url            TEXT NOT NULL,
	status_code    INTEGER NOT NULL DEFAULT 0,
	response_body  TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	succeeded      BOOLEAN NOT NULL DEFAULT false,
	attempted_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_responses_application ON attribute_responses(application_id);
CREATE INDEX IF NOT EXISTS idx_documents_response ON response_documents(application_id, attribute_key);
CREATE INDEX IF NOT EXISTS idx_applications_sync ON applications(sync_state);
CREATE INDEX IF NOT EXISTS idx_deliveries_application ON deliveries(application_id);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateApplication inserts a new application, generating an id if absent.
func (s *PostgresStore) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = model.ApplicationDraft
	}
	if app.SyncState == "" {
		app.SyncState = model.SyncPending
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, company_id, name, status, sync_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		app.ID, app.CompanyID, app.Name, string(app.Status), string(app.SyncState), app.CreatedAt, app.UpdatedAt)
	return eris.Wrap(err, "postgres: create application")
}

// GetApplication loads an application with its fetch status map.
func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	var status, syncState string
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, name, status, sync_state, created_at, updated_at FROM applications WHERE id = $1`,
		id).Scan(&app.ID, &app.CompanyID, &app.Name, &status, &syncState, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("postgres: application %s not found", id)
		}
		return nil, eris.Wrap(err, "postgres: get application")
	}
	app.Status = model.ApplicationStatus(status)
	app.SyncState = model.SyncState(syncState)

	fetches, err := s.ListFetchStatuses(ctx, id)
	if err != nil {
		return nil, err
	}
	app.Fetches = fetches
	return &app, nil
}

// CompleteApplication marks an application completed.
func (s *PostgresStore) CompleteApplication(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET status = 'completed', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: complete application")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: application %s not found", id)
	}
	return nil
}

// ListAttributes loads the attribute catalogue.
func (s *PostgresStore) ListAttributes(ctx context.Context) ([]model.Attribute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, label, type, api_name, api_key, required FROM attributes ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attributes")
	}
	defer rows.Close()

	var attrs []model.Attribute
	for rows.Next() {
		var a model.Attribute
		if err := rows.Scan(&a.Key, &a.Label, &a.Type, &a.APIName, &a.APIKey, &a.Required); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attribute")
		}
		attrs = append(attrs, a)
	}
	return attrs, eris.Wrap(rows.Err(), "postgres: list attributes")
}

// SeedAttributes upserts the built-in attribute catalogue.
func (s *PostgresStore) SeedAttributes(ctx context.Context, attrs []model.Attribute) error {
	for _, a := range attrs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO attributes (key, label, type, api_name, api_key, required)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (key) DO UPDATE SET label = $2, type = $3, api_name = $4, api_key = $5, required = $6`,
			a.Key, a.Label, a.Type, a.APIName, a.APIKey, a.Required)
		if err != nil {
			return eris.Wrapf(err, "postgres: seed attribute %s", a.Key)
		}
	}
	return nil
}

// GetResponse loads one field response, or nil when the field was never
// touched on this application.
func (s *PostgresStore) GetResponse(ctx context.Context, applicationID, attributeKey string) (*model.AttributeResponse, error) {
	var resp model.AttributeResponse
	var value []byte
	var source string
	err := s.pool.QueryRow(ctx,
		`SELECT id, application_id, attribute_key, value, source, created_at, updated_at
		 FROM attribute_responses WHERE application_id = $1 AND attribute_key = $2`,
		applicationID, attributeKey).
		Scan(&resp.ID, &resp.ApplicationID, &resp.AttributeKey, &value, &source, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get response")
	}
	resp.Source = model.Source(source)
	if len(value) > 0 {
		if err := json.Unmarshal(value, &resp.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: decode response value")
		}
	}

	docs, err := s.listDocuments(ctx, applicationID, attributeKey)
	if err != nil {
		return nil, err
	}
	resp.Documents = docs
	return &resp, nil
}

// UpsertResponse writes a response keyed by (application, attribute) and
// replaces its attached documents.
func (s *PostgresStore) UpsertResponse(ctx context.Context, resp *model.AttributeResponse) error {
	var value []byte
	if resp.Value != nil {
		var err error
		value, err = json.Marshal(resp.Value)
		if err != nil {
			return eris.Wrap(err, "postgres: encode response value")
		}
	}

	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attribute_responses (application_id, attribute_key, value, source, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (application_id, attribute_key)
		 DO UPDATE SET value = $3, source = $4, updated_at = $5`,
		resp.ApplicationID, resp.AttributeKey, value, string(resp.Source), now)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert response")
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM response_documents WHERE application_id = $1 AND attribute_key = $2`,
		resp.ApplicationID, resp.AttributeKey); err != nil {
		return eris.Wrap(err, "postgres: clear documents")
	}
	for _, doc := range resp.Documents {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: encode document metadata")
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO response_documents (id, application_id, attribute_key, provider, filename, content_type, bytes, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.NewString(), resp.ApplicationID, resp.AttributeKey, doc.Provider, doc.Filename, doc.ContentType, doc.Bytes, meta); err != nil {
			return eris.Wrapf(err, "postgres: attach document %s", doc.Filename)
		}
	}
	return nil
}

// ListResponses loads every response on an application.
func (s *PostgresStore) ListResponses(ctx context.Context, applicationID string) ([]model.AttributeResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, application_id, attribute_key, value, source, created_at, updated_at
		 FROM attribute_responses WHERE application_id = $1 ORDER BY attribute_key`,
		applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list responses")
	}
	defer rows.Close()

	var out []model.AttributeResponse
	for rows.Next() {
		var resp model.AttributeResponse
		var value []byte
		var source string
		if err := rows.Scan(&resp.ID, &resp.ApplicationID, &resp.AttributeKey, &value, &source, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan response")
		}
		resp.Source = model.Source(source)
		if len(value) > 0 {
			if err := json.Unmarshal(value, &resp.Value); err != nil {
				return nil, eris.Wrap(err, "postgres: decode response value")
			}
		}
		out = append(out, resp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list responses")
}

func (s *PostgresStore) listDocuments(ctx context.Context, applicationID, attributeKey string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, filename, content_type, bytes, metadata
		 FROM response_documents WHERE application_id = $1 AND attribute_key = $2 ORDER BY filename`,
		applicationID, attributeKey)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var meta []byte
		if err := rows.Scan(&doc.Provider, &doc.Filename, &doc.ContentType, &doc.Bytes, &meta); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: decode document metadata")
			}
		}
		docs = append(docs, doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents")
}

// RollbackProvider clears auto-written data for the given fields and marks
// them manual_after_api_failure. Rows a human answered are never touched.
func (s *PostgresStore) RollbackProvider(ctx context.Context, applicationID string, attributeKeys []string) error {
	if len(attributeKeys) == 0 {
		return nil
	}

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM response_documents
		 WHERE application_id = $1 AND attribute_key IN (
			SELECT attribute_key FROM attribute_responses
			WHERE application_id = $1 AND attribute_key = ANY($2) AND source <> 'manual')`,
		applicationID, attributeKeys); err != nil {
		return eris.Wrap(err, "postgres: rollback documents")
	}

	for _, key := range attributeKeys {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO attribute_responses (application_id, attribute_key, value, source, created_at, updated_at)
			 VALUES ($1, $2, NULL, 'manual_after_api_failure', now(), now())
			 ON CONFLICT (application_id, attribute_key)
			 DO UPDATE SET value = NULL, source = 'manual_after_api_failure', updated_at = now()
			 WHERE attribute_responses.source <> 'manual'`,
			applicationID, key); err != nil {
			return eris.Wrapf(err, "postgres: rollback field %s", key)
		}
	}
	return nil
}

// SetFetchStatus upserts a provider's fetch status on an application.
func (s *PostgresStore) SetFetchStatus(ctx context.Context, applicationID, provider string, status model.FetchStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_statuses (application_id, provider, state, fields_filled, error, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (application_id, provider)
		 DO UPDATE SET state = $3, fields_filled = $4, error = $5, updated_at = now()`,
		applicationID, provider, string(status.State), status.FieldsFilled, status.Error)
	return eris.Wrap(err, "postgres: set fetch status")
}

// GetFetchStatus reads a provider's fetch status, defaulting to pending.
func (s *PostgresStore) GetFetchStatus(ctx context.Context, applicationID, provider string) (model.FetchStatus, error) {
	var st model.FetchStatus
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT state, fields_filled, error, updated_at FROM fetch_statuses
		 WHERE application_id = $1 AND provider = $2`,
		applicationID, provider).Scan(&state, &st.FieldsFilled, &st.Error, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.FetchStatus{State: model.FetchPending}, nil
		}
		return st, eris.Wrap(err, "postgres: get fetch status")
	}
	st.State = model.FetchState(state)
	return st, nil
}

// ListFetchStatuses reads the full provider status map for an application.
func (s *PostgresStore) ListFetchStatuses(ctx context.Context, applicationID string) (map[string]model.FetchStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT provider, state, fields_filled, error, updated_at FROM fetch_statuses WHERE application_id = $1`,
		applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fetch statuses")
	}
	defer rows.Close()

	out := make(map[string]model.FetchStatus)
	for rows.Next() {
		var provider, state string
		var st model.FetchStatus
		if err := rows.Scan(&provider, &state, &st.FieldsFilled, &st.Error, &st.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fetch status")
		}
		st.State = model.FetchState(state)
		out[provider] = st
	}
	return out, eris.Wrap(rows.Err(), "postgres: list fetch statuses")
}

// GetSyncState reads the webhook sync state of an application.
func (s *PostgresStore) GetSyncState(ctx context.Context, applicationID string) (model.SyncState, error) {
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT sync_state FROM applications WHERE id = $1`, applicationID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Errorf("postgres: application %s not found", applicationID)
		}
		return "", eris.Wrap(err, "postgres: get sync state")
	}
	return model.SyncState(state), nil
}

// TransitionSync performs a guarded compare-and-set on the sync state.
func (s *PostgresStore) TransitionSync(ctx context.Context, applicationID string, from, to model.SyncState) (bool, error) {
	if !model.ValidSyncTransition(from, to) {
		return false, eris.Errorf("postgres: invalid sync transition %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET sync_state = $1, updated_at = now() WHERE id = $2 AND sync_state = $3`,
		string(to), applicationID, string(from))
	if err != nil {
		return false, eris.Wrap(err, "postgres: transition sync")
	}
	return tag.RowsAffected() > 0, nil
}

// ListSyncsInState lists application ids in a given sync state.
func (s *PostgresStore) ListSyncsInState(ctx context.Context, state model.SyncState, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM applications WHERE sync_state = $1 AND status = 'completed' ORDER BY updated_at LIMIT $2`,
		string(state), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list syncs")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list syncs")
}

// RecordDelivery appends a webhook delivery attempt for diagnostics.
func (s *PostgresStore) RecordDelivery(ctx context.Context, d *model.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deliveries (id, application_id, integrator, url, status_code, response_body, error, succeeded, attempted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ApplicationID, d.Integrator, d.URL, d.StatusCode, d.ResponseBody, d.Error, d.Succeeded, d.AttemptedAt)
	return eris.Wrap(err, "postgres: record delivery")
}
