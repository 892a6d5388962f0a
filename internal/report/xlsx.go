package report

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet used by the XLSX report.
const SheetName = "Redactions"

// WriteXLSX renders rows as an XLSX workbook.
func WriteXLSX(rows []Row) ([]byte, error) {
	const op = "WriteXLSX"

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("%s: failed to remove default sheet: %w", op, err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("%s: failed to write headers: %w", op, err)
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6E6"}, Pattern: 1},
	})
	if err == nil {
		_ = f.SetRowStyle(SheetName, 1, 1, bold)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row.Values()
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("%s: failed to write row %d: %w", op, i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 36)
	_ = f.SetColWidth(SheetName, "D", "D", 28)
	_ = f.SetColWidth(SheetName, "F", "F", 24)
	_ = f.SetColWidth(SheetName, "J", "K", 40)
	_ = f.SetColWidth(SheetName, "L", "L", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: xlsx write: %w", op, err)
	}
	return buf.Bytes(), nil
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, rows []Row) error {
	data, err := WriteXLSX(rows)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("SaveXLSX: %w", err)
	}
	return nil
}
