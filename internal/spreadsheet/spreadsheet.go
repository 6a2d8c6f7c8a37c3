// Package spreadsheet reads lead sheets and writes commission statements as XLSX.
package spreadsheet

import (
	"io"
	"strings"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxUpload caps the workbook size accepted by ReadSheet.
const maxUpload = 20 << 20

// ReadSheet parses the first sheet of an XLSX workbook. The first non-blank
// row is the header; fully blank rows are dropped.
func ReadSheet(r io.Reader) (header []string, rows [][]string, err error) {
	data, err := io.ReadAll(io.LimitReader(r, maxUpload+1))
	if err != nil {
		return nil, nil, eris.Wrap(err, "spreadsheet: read upload")
	}
	if len(data) > maxUpload {
		return nil, nil, &domain.ErrValidation{Field: "file", Message: "spreadsheet exceeds 20MB"}
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, nil, &domain.ErrValidation{Field: "file", Message: "not a valid xlsx workbook: " + err.Error()}
	}
	if len(f.Sheets) == 0 {
		return nil, nil, &domain.ErrValidation{Field: "file", Message: "workbook has no sheets"}
	}

	for _, row := range f.Sheets[0].Rows {
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, nil, &domain.ErrValidation{Field: "file", Message: "sheet is empty"}
	}
	return header, rows, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

var statementHeader = []string{
	"Parcela", "Valor parcela", "Percentual", "Comissão", "Competência", "Status", "Liberada em",
}

// WriteStatement renders a seller's monthly statement: one line per
// commission followed by per-status totals.
func WriteStatement(w io.Writer, st *domain.CommissionStatement) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Comissões")
	if err != nil {
		return eris.Wrap(err, "spreadsheet: add sheet")
	}

	addStrings(sheet, "Vendedor", st.SellerID)
	addStrings(sheet, "Competência", st.CompetenceMonth.Format("01/2006"))
	sheet.AddRow()
	addStrings(sheet, statementHeader...)

	for _, c := range st.Items {
		row := sheet.AddRow()
		row.AddCell().SetString(c.InstallmentID)
		row.AddCell().SetFloat(c.InstallmentValue)
		row.AddCell().SetFloat(c.CommissionPercent)
		row.AddCell().SetFloat(c.CommissionValue)
		row.AddCell().SetString(c.CompetenceMonth.Format("2006-01-02"))
		row.AddCell().SetString(string(c.Status))
		released := ""
		if c.ReleasedAt != nil {
			released = c.ReleasedAt.Format("2006-01-02 15:04")
		}
		row.AddCell().SetString(released)
	}

	sheet.AddRow()
	for _, total := range []struct {
		label string
		value float64
	}{
		{"Pendente", st.Pending},
		{"Liberada", st.Released},
		{"Suspensa", st.Suspended},
		{"Cancelada", st.Cancelled},
		{"Total", st.Total},
	} {
		row := sheet.AddRow()
		row.AddCell().SetString(total.label)
		row.AddCell().SetFloat(total.value)
	}

	return eris.Wrap(f.Write(w), "spreadsheet: write workbook")
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
