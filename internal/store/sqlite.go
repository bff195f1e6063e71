package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prequal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// development and single-operator runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS applications (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'draft',
	sync_state TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS attributes (
	key      TEXT PRIMARY KEY,
	label    TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL DEFAULT 'text',
	api_name TEXT NOT NULL DEFAULT '',
	api_key  TEXT NOT NULL DEFAULT '',
	required INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attribute_responses (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id TEXT NOT NULL REFERENCES applications(id),
	attribute_key  TEXT NOT NULL,
	value          TEXT,
	source         TEXT NOT NULL DEFAULT 'manual',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (application_id, attribute_key)
);

CREATE TABLE IF NOT EXISTS response_documents (
	id             TEXT PRIMARY KEY,
	application_id TEXT NOT NULL,
	attribute_key  TEXT NOT NULL,
	provider       TEXT NOT NULL DEFAULT '',
	filename       TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	bytes          BLOB NOT NULL,
	metadata       TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fetch_statuses (
	application_id TEXT NOT NULL,
	provider       TEXT NOT NULL,
	state          TEXT NOT NULL DEFAULT 'pending',
	fields_filled  INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
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
	succeeded      INTEGER NOT NULL DEFAULT 0,
	attempted_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_responses_application ON attribute_responses(application_id);
CREATE INDEX IF NOT EXISTS idx_documents_response ON response_documents(application_id, attribute_key);
CREATE INDEX IF NOT EXISTS idx_applications_sync ON applications(sync_state);
CREATE INDEX IF NOT EXISTS idx_deliveries_application ON deliveries(application_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateApplication(ctx context.Context, app *model.Application) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (id, company_id, name, status, sync_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.CompanyID, app.Name, string(app.Status), string(app.SyncState), app.CreatedAt, app.UpdatedAt)
	return eris.Wrap(err, "sqlite: create application")
}

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	var status, syncState string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, name, status, sync_state, created_at, updated_at FROM applications WHERE id = ?`,
		id).Scan(&app.ID, &app.CompanyID, &app.Name, &status, &syncState, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: application %s not found", id)
		}
		return nil, eris.Wrap(err, "sqlite: get application")
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

func (s *SQLiteStore) CompleteApplication(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = 'completed', updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete application")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: complete application")
	}
	if n == 0 {
		return eris.Errorf("sqlite: application %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) ListAttributes(ctx context.Context) ([]model.Attribute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, label, type, api_name, api_key, required FROM attributes ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attributes")
	}
	defer rows.Close()

	var attrs []model.Attribute
	for rows.Next() {
		var a model.Attribute
		if err := rows.Scan(&a.Key, &a.Label, &a.Type, &a.APIName, &a.APIKey, &a.Required); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attribute")
		}
		attrs = append(attrs, a)
	}
	return attrs, eris.Wrap(rows.Err(), "sqlite: list attributes")
}

func (s *SQLiteStore) SeedAttributes(ctx context.Context, attrs []model.Attribute) error {
	for _, a := range attrs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO attributes (key, label, type, api_name, api_key, required)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET label = excluded.label, type = excluded.type,
				api_name = excluded.api_name, api_key = excluded.api_key, required = excluded.required`,
			a.Key, a.Label, a.Type, a.APIName, a.APIKey, a.Required)
		if err != nil {
			return eris.Wrapf(err, "sqlite: seed attribute %s", a.Key)
		}
	}
	return nil
}

func (s *SQLiteStore) GetResponse(ctx context.Context, applicationID, attributeKey string) (*model.AttributeResponse, error) {
	var resp model.AttributeResponse
	var value sql.NullString
	var source string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, attribute_key, value, source, created_at, updated_at
		 FROM attribute_responses WHERE application_id = ? AND attribute_key = ?`,
		applicationID, attributeKey).
		Scan(&resp.ID, &resp.ApplicationID, &resp.AttributeKey, &value, &source, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get response")
	}
	resp.Source = model.Source(source)
	if value.Valid && value.String != "" {
		if err := json.Unmarshal([]byte(value.String), &resp.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode response value")
		}
	}

	docs, err := s.listDocuments(ctx, applicationID, attributeKey)
	if err != nil {
		return nil, err
	}
	resp.Documents = docs
	return &resp, nil
}

func (s *SQLiteStore) UpsertResponse(ctx context.Context, resp *model.AttributeResponse) error {
	var value any
	if resp.Value != nil {
		encoded, err := json.Marshal(resp.Value)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode response value")
		}
		value = string(encoded)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attribute_responses (application_id, attribute_key, value, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (application_id, attribute_key)
		 DO UPDATE SET value = excluded.value, source = excluded.source, updated_at = excluded.updated_at`,
		resp.ApplicationID, resp.AttributeKey, value, string(resp.Source), now, now)
	if err != nil {
		return eris.Wrap(err, "sqlite: upsert response")
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM response_documents WHERE application_id = ? AND attribute_key = ?`,
		resp.ApplicationID, resp.AttributeKey); err != nil {
		return eris.Wrap(err, "sqlite: clear documents")
	}
	for _, doc := range resp.Documents {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode document metadata")
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO response_documents (id, application_id, attribute_key, provider, filename, content_type, bytes, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), resp.ApplicationID, resp.AttributeKey, doc.Provider, doc.Filename, doc.ContentType, doc.Bytes, string(meta)); err != nil {
			return eris.Wrapf(err, "sqlite: attach document %s", doc.Filename)
		}
	}
	return nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, applicationID string) ([]model.AttributeResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_id, attribute_key, value, source, created_at, updated_at
		 FROM attribute_responses WHERE application_id = ? ORDER BY attribute_key`,
		applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list responses")
	}
	defer rows.Close()

	var out []model.AttributeResponse
	for rows.Next() {
		var resp model.AttributeResponse
		var value sql.NullString
		var source string
		if err := rows.Scan(&resp.ID, &resp.ApplicationID, &resp.AttributeKey, &value, &source, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan response")
		}
		resp.Source = model.Source(source)
		if value.Valid && value.String != "" {
			if err := json.Unmarshal([]byte(value.String), &resp.Value); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode response value")
			}
		}
		out = append(out, resp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list responses")
}

func (s *SQLiteStore) listDocuments(ctx context.Context, applicationID, attributeKey string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, filename, content_type, bytes, metadata
		 FROM response_documents WHERE application_id = ? AND attribute_key = ? ORDER BY filename`,
		applicationID, attributeKey)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		var meta sql.NullString
		if err := rows.Scan(&doc.Provider, &doc.Filename, &doc.ContentType, &doc.Bytes, &meta); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode document metadata")
			}
		}
		docs = append(docs, doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents")
}

func (s *SQLiteStore) RollbackProvider(ctx context.Context, applicationID string, attributeKeys []string) error {
	if len(attributeKeys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(attributeKeys)), ",")
	args := make([]any, 0, len(attributeKeys)+2)
	args = append(args, applicationID, applicationID)
	for _, key := range attributeKeys {
		args = append(args, key)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM response_documents
		 WHERE application_id = ? AND attribute_key IN (
			SELECT attribute_key FROM attribute_responses
			WHERE application_id = ? AND attribute_key IN (`+placeholders+`) AND source <> 'manual')`,
		args...); err != nil {
		return eris.Wrap(err, "sqlite: rollback documents")
	}

	for _, key := range attributeKeys {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO attribute_responses (application_id, attribute_key, value, source, created_at, updated_at)
			 VALUES (?, ?, NULL, 'manual_after_api_failure', datetime('now'), datetime('now'))
			 ON CONFLICT (application_id, attribute_key)
			 DO UPDATE SET value = NULL, source = 'manual_after_api_failure', updated_at = datetime('now')
			 WHERE attribute_responses.source <> 'manual'`,
			applicationID, key); err != nil {
			return eris.Wrapf(err, "sqlite: rollback field %s", key)
		}
	}
	return nil
}

func (s *SQLiteStore) SetFetchStatus(ctx context.Context, applicationID, provider string, status model.FetchStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_statuses (application_id, provider, state, fields_filled, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (application_id, provider)
		 DO UPDATE SET state = excluded.state, fields_filled = excluded.fields_filled,
			error = excluded.error, updated_at = datetime('now')`,
		applicationID, provider, string(status.State), status.FieldsFilled, status.Error)
	return eris.Wrap(err, "sqlite: set fetch status")
}

func (s *SQLiteStore) GetFetchStatus(ctx context.Context, applicationID, provider string) (model.FetchStatus, error) {
	var st model.FetchStatus
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state, fields_filled, error, updated_at FROM fetch_statuses
		 WHERE application_id = ? AND provider = ?`,
		applicationID, provider).Scan(&state, &st.FieldsFilled, &st.Error, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FetchStatus{State: model.FetchPending}, nil
		}
		return st, eris.Wrap(err, "sqlite: get fetch status")
	}
	st.State = model.FetchState(state)
	return st, nil
}

func (s *SQLiteStore) ListFetchStatuses(ctx context.Context, applicationID string) (map[string]model.FetchStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, state, fields_filled, error, updated_at FROM fetch_statuses WHERE application_id = ?`,
		applicationID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fetch statuses")
	}
	defer rows.Close()

	out := make(map[string]model.FetchStatus)
	for rows.Next() {
		var provider, state string
		var st model.FetchStatus
		if err := rows.Scan(&provider, &state, &st.FieldsFilled, &st.Error, &st.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fetch status")
		}
		st.State = model.FetchState(state)
		out[provider] = st
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list fetch statuses")
}

func (s *SQLiteStore) GetSyncState(ctx context.Context, applicationID string) (model.SyncState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT sync_state FROM applications WHERE id = ?`, applicationID).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", eris.Errorf("sqlite: application %s not found", applicationID)
		}
		return "", eris.Wrap(err, "sqlite: get sync state")
	}
	return model.SyncState(state), nil
}

func (s *SQLiteStore) TransitionSync(ctx context.Context, applicationID string, from, to model.SyncState) (bool, error) {
	if !model.ValidSyncTransition(from, to) {
		return false, eris.Errorf("sqlite: invalid sync transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET sync_state = ?, updated_at = datetime('now') WHERE id = ? AND sync_state = ?`,
		string(to), applicationID, string(from))
	if err != nil {
		return false, eris.Wrap(err, "sqlite: transition sync")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: transition sync")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListSyncsInState(ctx context.Context, state model.SyncState, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM applications WHERE sync_state = ? AND status = 'completed' ORDER BY updated_at LIMIT ?`,
		string(state), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list syncs")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list syncs")
}

func (s *SQLiteStore) RecordDelivery(ctx context.Context, d *model.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, application_id, integrator, url, status_code, response_body, error, succeeded, attempted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ApplicationID, d.Integrator, d.URL, d.StatusCode, d.ResponseBody, d.Error, d.Succeeded, d.AttemptedAt)
	return eris.Wrap(err, "sqlite: record delivery")
}
