package exportsvc

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

var (
	Formats          = []string{FormatCSV, FormatJSON, FormatXLSX}
	ErrUnknownFormat = errors.New("unknown export format")

	contentTypes = map[string]string{
		FormatCSV:  "text/csv; charset=utf-8",
		FormatJSON: "application/json; charset=utf-8",
		FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
)

// Table is a flat export; every row has len(Headers) cells.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// ParseFormat defaults to CSV.
func ParseFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return FormatCSV, nil
	}
	if _, ok := contentTypes[format]; !ok {
		return "", ErrUnknownFormat
	}
	return format, nil
}

func ContentType(format string) string {
	return contentTypes[format]
}

// FileName returns eg. "students-2024-03-01.xlsx".
func FileName(t Table, format, date string) string {
	return fmt.Sprintf("%s-%s.%s", t.Name, date, format)
}

func Write(w io.Writer, format string, t Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	default:
		return ErrUnknownFormat
	}
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return errors.Wrap(err, "writing csv headers")
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return errors.Wrap(err, "writing csv rows")
	}
	return nil
}

// WriteJSON writes an array of header-keyed objects.
func WriteJSON(w io.Writer, t Table) error {
	objs := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		obj := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(row) {
				obj[h] = row[i]
			}
		}
		objs = append(objs, obj)
	}
	return errors.Wrap(json.NewEncoder(w).Encode(objs), "writing json")
}

// WriteXLSX writes a single sheet with a bold, frozen header row.
func WriteXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := sheetName(t.Name)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1F4E79"}},
	})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return errors.Wrap(err, "creating stream writer")
	}
	if err = sw.SetPanes(&excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return errors.Wrap(err, "freezing header")
	}

	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err = sw.SetRow("A1", header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err = sw.SetRow(cell, cells); err != nil {
			return errors.Wrapf(err, "writing row %d", r+1)
		}
	}
	if err = sw.Flush(); err != nil {
		return errors.Wrap(err, "flushing sheet")
	}
	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing xlsx")
}

// sheetName trims to the 31 chars Excel allows and drops forbidden characters.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "Export"
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
