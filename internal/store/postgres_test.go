package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prequal-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateApplication_Defaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs(pgxmock.AnyArg(), "DE-123", "Acme GmbH", "draft", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	app := &model.Application{CompanyID: "DE-123", Name: "Acme GmbH"}
	err := s.CreateApplication(context.Background(), app)
	require.NoError(t, err)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, model.ApplicationDraft, app.Status)
	assert.Equal(t, model.SyncPending, app.SyncState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetApplication_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, company_id, name, status, sync_state, created_at, updated_at FROM applications WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetApplication(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResponse_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, application_id, attribute_key, value, source, created_at, updated_at`).
		WithArgs("app-1", "tax_clearance_status").
		WillReturnError(pgx.ErrNoRows)

	resp, err := s.GetResponse(context.Background(), "app-1", "tax_clearance_status")
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetResponse_DecodesValueAndDocuments(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM attribute_responses WHERE application_id = \$1 AND attribute_key = \$2`).
		WithArgs("app-1", "tax_clearance_status").
		WillReturnRows(pgxmock.NewRows([]string{"id", "application_id", "attribute_key", "value", "source", "created_at", "updated_at"}).
			AddRow(int64(1), "app-1", "tax_clearance_status", []byte(`"clear"`), "auto", now, now))
	mock.ExpectQuery(`FROM response_documents`).
		WithArgs("app-1", "tax_clearance_status").
		WillReturnRows(pgxmock.NewRows([]string{"provider", "filename", "content_type", "bytes", "metadata"}).
			AddRow("tax_registry", "de-123_tax-clearance.pdf", "application/pdf", []byte("%PDF-"), []byte(`{"format":"pdf"}`)))

	resp, err := s.GetResponse(context.Background(), "app-1", "tax_clearance_status")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "clear", resp.Value)
	assert.Equal(t, model.SourceAuto, resp.Source)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "de-123_tax-clearance.pdf", resp.Documents[0].Filename)
	assert.Equal(t, "pdf", resp.Documents[0].Metadata["format"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertResponse(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO attribute_responses[\s\S]*ON CONFLICT`).
		WithArgs("app-1", "tax_clearance_status", []byte(`"clear"`), "auto", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM response_documents`).
		WithArgs("app-1", "tax_clearance_status").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.UpsertResponse(context.Background(), &model.AttributeResponse{
		ApplicationID: "app-1",
		AttributeKey:  "tax_clearance_status",
		Value:         "clear",
		Source:        model.SourceAuto,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RollbackProvider_GuardsManualRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	keys := []string{"tax_clearance_status", "tax_valid_until"}

	mock.ExpectExec(`DELETE FROM response_documents[\s\S]*source <> 'manual'`).
		WithArgs("app-1", keys).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	for range keys {
		mock.ExpectExec(`ON CONFLICT \(application_id, attribute_key\)[\s\S]*source = 'manual_after_api_failure'[\s\S]*source <> 'manual'`).
			WithArgs("app-1", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	err := s.RollbackProvider(context.Background(), "app-1", keys)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RollbackProvider_NoKeysNoQueries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.RollbackProvider(context.Background(), "app-1", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetFetchStatus_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO fetch_statuses[\s\S]*ON CONFLICT`).
		WithArgs("app-1", "tax_registry", "completed", 3, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetFetchStatus(context.Background(), "app-1", "tax_registry", model.FetchStatus{
		State:        model.FetchCompleted,
		FieldsFilled: 3,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFetchStatus_DefaultsToPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state, fields_filled, error, updated_at FROM fetch_statuses`).
		WithArgs("app-1", "tax_registry").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetFetchStatus(context.Background(), "app-1", "tax_registry")
	require.NoError(t, err)
	assert.Equal(t, model.FetchPending, st.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionSync_CAS(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE applications SET sync_state = \$1`).
		WithArgs("processing", "app-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.TransitionSync(context.Background(), "app-1", model.SyncPending, model.SyncProcessing)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionSync_LostRace(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE applications SET sync_state = \$1`).
		WithArgs("processing", "app-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.TransitionSync(context.Background(), "app-1", model.SyncPending, model.SyncProcessing)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TransitionSync_InvalidTransition(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.TransitionSync(context.Background(), "app-1", model.SyncCompleted, model.SyncPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sync transition")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordDelivery_FillsDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO deliveries`).
		WithArgs(pgxmock.AnyArg(), "app-1", "crm", "https://crm.example.com/hook", 200, "ok", "", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	d := &model.Delivery{
		ApplicationID: "app-1",
		Integrator:    "crm",
		URL:           "https://crm.example.com/hook",
		StatusCode:    200,
		ResponseBody:  "ok",
		Succeeded:     true,
	}
	err := s.RecordDelivery(context.Background(), d)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ID)
	assert.False(t, d.AttemptedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
