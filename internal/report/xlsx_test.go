package report

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/store"
)

func TestExport_WritesFieldsAndFetches(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	app := &model.Application{CompanyID: "DE-123456", Name: "Acme Bau GmbH"}
	require.NoError(t, st.CreateApplication(ctx, app))
	require.NoError(t, st.UpsertResponse(ctx, &model.AttributeResponse{
		ApplicationID: app.ID,
		AttributeKey:  "tax_clearance_status",
		Value:         "clear",
		Source:        model.SourceAuto,
	}))
	require.NoError(t, st.UpsertResponse(ctx, &model.AttributeResponse{
		ApplicationID: app.ID,
		AttributeKey:  "trade_count",
		Value:         float64(2),
		Source:        model.SourceManual,
	}))
	require.NoError(t, st.SetFetchStatus(ctx, app.ID, "tax_registry", model.FetchStatus{
		State:        model.FetchCompleted,
		FieldsFilled: 1,
	}))
	require.NoError(t, st.SetFetchStatus(ctx, app.ID, "trade_register", model.FetchStatus{
		State: model.FetchFailed,
		Error: "status 503",
	}))

	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, NewExporter(st).Export(ctx, app.ID, path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	fields := f.Sheet["Fields"]
	require.NotNil(t, fields)
	require.Len(t, fields.Rows, 3) // header + 2 responses
	assert.Equal(t, "Attribute", fields.Rows[0].Cells[2].String())
	assert.Equal(t, "tax_clearance_status", fields.Rows[1].Cells[2].String())
	assert.Equal(t, "clear", fields.Rows[1].Cells[3].String())
	assert.Equal(t, "auto", fields.Rows[1].Cells[4].String())
	assert.Equal(t, "trade_count", fields.Rows[2].Cells[2].String())
	assert.Equal(t, "2", fields.Rows[2].Cells[3].String())

	fetches := f.Sheet["Fetches"]
	require.NotNil(t, fetches)
	require.Len(t, fetches.Rows, 3)
	// Providers are sorted by name.
	assert.Equal(t, "tax_registry", fetches.Rows[1].Cells[0].String())
	assert.Equal(t, "completed", fetches.Rows[1].Cells[1].String())
	assert.Equal(t, "trade_register", fetches.Rows[2].Cells[0].String())
	assert.Equal(t, "status 503", fetches.Rows[2].Cells[3].String())
}

func TestExport_UnknownApplication(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	err = NewExporter(st).Export(ctx, "missing", filepath.Join(t.TempDir(), "out.xlsx"))
	require.Error(t, err)
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "clear", "clear"},
		{"number", float64(3), "3"},
		{"bool", true, "true"},
		{"structured", map[string]any{"choice": "yes"}, `{"choice":"yes"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderValue(tc.in))
		})
	}
}
