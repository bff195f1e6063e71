// Package report renders application snapshots for operators who review
// prequalification data outside the system.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prequal-cli/internal/model"
	"github.com/sells-group/prequal-cli/internal/store"
)

// Exporter writes application workbooks.
type Exporter struct {
	store store.Store
}

// NewExporter creates an Exporter.
func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Export writes one application to an XLSX workbook at path. The workbook
// carries a Fields sheet with every answered form field and a Fetches sheet
// with the per-provider fetch history.
func (e *Exporter) Export(ctx context.Context, applicationID, path string) error {
	app, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	responses, err := e.store.ListResponses(ctx, applicationID)
	if err != nil {
		return err
	}

	f := xlsx.NewFile()
	if err := e.writeFields(f, app, responses); err != nil {
		return err
	}
	if err := e.writeFetches(f, app); err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func (e *Exporter) writeFields(f *xlsx.File, app *model.Application, responses []model.AttributeResponse) error {
	sheet, err := f.AddSheet("Fields")
	if err != nil {
		return eris.Wrap(err, "report: add fields sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Application", "Company", "Attribute", "Value", "Source", "Updated"} {
		header.AddCell().SetString(h)
	}

	for _, resp := range responses {
		row := sheet.AddRow()
		row.AddCell().SetString(app.ID)
		row.AddCell().SetString(app.CompanyID)
		row.AddCell().SetString(resp.AttributeKey)
		row.AddCell().SetString(renderValue(resp.Value))
		row.AddCell().SetString(string(resp.Source))
		row.AddCell().SetString(resp.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (e *Exporter) writeFetches(f *xlsx.File, app *model.Application) error {
	sheet, err := f.AddSheet("Fetches")
	if err != nil {
		return eris.Wrap(err, "report: add fetches sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Provider", "State", "Fields Filled", "Error", "Updated"} {
		header.AddCell().SetString(h)
	}

	providers := make([]string, 0, len(app.Fetches))
	for provider := range app.Fetches {
		providers = append(providers, provider)
	}
	sort.Strings(providers)

	for _, provider := range providers {
		st := app.Fetches[provider]
		row := sheet.AddRow()
		row.AddCell().SetString(provider)
		row.AddCell().SetString(string(st.State))
		row.AddCell().SetInt(st.FieldsFilled)
		row.AddCell().SetString(st.Error)
		row.AddCell().SetString(st.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// renderValue flattens a stored field value to a cell string. Structured
// values (choices, reference lists) render as compact JSON.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
