package exportsvc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var table = Table{
	Name:    "students",
	Headers: []string{"Admission No", "Name"},
	Rows: [][]string{
		{"HP-001", "Harry Potter"},
		{"HG-002", "Hermione, Granger"},
	},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"XLSX", FormatXLSX, false},
		{" json ", FormatJSON, false},
		{"pdf", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, table))
	assert.Equal(t, "Admission No,Name\nHP-001,Harry Potter\nHG-002,\"Hermione, Granger\"\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, table))

	var got []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Hermione, Granger", got[1]["Name"])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, table))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("students")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, table.Headers, rows[0])
	assert.Equal(t, "HG-002", rows[2][0])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Export", sheetName(""))
	assert.Equal(t, "invoices2024", sheetName("invoices/2024"))
	assert.Len(t, []rune(sheetName("attendance-records-for-the-whole-term")), 31)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "students-2024-03-01.xlsx", FileName(table, FormatXLSX, "2024-03-01"))
	assert.Equal(t, "text/csv; charset=utf-8", ContentType(FormatCSV))
}
