package spreadsheet

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func workbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

func TestReadSheet(t *testing.T) {
	buf := workbook(t, [][]string{
		{"", ""},
		{"Nome", " E-mail ", "Cargo"},
		{"Ana", "ana@x.com", "CEO"},
		{"", "", ""},
		{"Bia", "bia@x.com", "CTO"},
	})

	header, rows, err := ReadSheet(buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "E-mail", "Cargo"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Bia", "bia@x.com", "CTO"}, rows[1])
}

func TestReadSheet_NotXLSX(t *testing.T) {
	_, _, err := ReadSheet(strings.NewReader("name,email\nana,ana@x.com\n"))
	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "file", verr.Field)
}

func TestReadSheet_Empty(t *testing.T) {
	_, _, err := ReadSheet(workbook(t, nil))
	var verr *domain.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestWriteStatement_RoundTrip(t *testing.T) {
	released := time.Date(2024, 3, 20, 9, 30, 0, 0, time.UTC)
	month := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st := &domain.CommissionStatement{
		SellerID:        "seller-1",
		CompetenceMonth: month,
		Pending:         10,
		Released:        10,
		Total:           20,
		Count:           2,
		Items: []domain.Commission{
			{InstallmentID: "i1", InstallmentValue: 100, CommissionPercent: 10, CommissionValue: 10, CompetenceMonth: month, Status: domain.CommissionReleased, ReleasedAt: &released},
			{InstallmentID: "i2", InstallmentValue: 100, CommissionPercent: 10, CommissionValue: 10, CompetenceMonth: month, Status: domain.CommissionPending},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStatement(&buf, st))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	rows := f.Sheets[0].Rows

	assert.Equal(t, "seller-1", rows[0].Cells[1].String())
	assert.Equal(t, "03/2024", rows[1].Cells[1].String())
	assert.Equal(t, "Parcela", rows[3].Cells[0].String())
	assert.Equal(t, "i1", rows[4].Cells[0].String())
	assert.Equal(t, "2024-03-20 09:30", rows[4].Cells[6].String())
	assert.Equal(t, "pending", rows[5].Cells[5].String())

	last := rows[len(rows)-1]
	assert.Equal(t, "Total", last.Cells[0].String())
	assert.Equal(t, "20", last.Cells[1].String())
}
