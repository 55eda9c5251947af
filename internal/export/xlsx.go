package export

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Report"

// EncodeXLSX renders the job as a single-sheet workbook. Number columns are
// written as numeric cells; everything else stays text.
func EncodeXLSX(job Job) (File, error) {
	if len(job.Rows) == 0 {
		return File{}, &EmptyDatasetError{ReportType: job.ReportType}
	}

	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	if err := wb.SetSheetName(wb.GetSheetName(0), sheetName); err != nil {
		return File{}, fmt.Errorf("name sheet: %w", err)
	}

	headers := job.Headers()
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := wb.SetSheetRow(sheetName, "A1", &header); err != nil {
		return File{}, fmt.Errorf("write header: %w", err)
	}
	bold, err := wb.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return File{}, fmt.Errorf("header style: %w", err)
	}
	if err := wb.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return File{}, fmt.Errorf("apply header style: %w", err)
	}

	for i, row := range job.Rows {
		cells := make([]interface{}, len(row))
		for c, v := range row {
			cells[c] = cellValue(job.Columns[c].Kind, v)
		}
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return File{}, err
		}
		if err := wb.SetSheetRow(sheetName, ref, &cells); err != nil {
			return File{}, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		return File{}, fmt.Errorf("write workbook: %w", err)
	}

	return File{
		FileName:    job.FileName(FormatXLSX),
		ContentType: ContentTypeXLSX,
		Content:     buf.Bytes(),
		Rows:        len(job.Rows),
	}, nil
}

func cellValue(kind ColumnKind, v string) interface{} {
	if kind != Number || v == "" {
		return v
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	return d.InexactFloat64()
}
