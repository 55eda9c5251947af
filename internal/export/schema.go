// Package export turns the dataset currently on screen into a downloadable
// file. Column order and header text are fixed per report.
package export

import (
	"errors"
	"fmt"

	"sitereports/internal/core"
)

// ColumnKind tells the workbook encoder how to type a cell.
type ColumnKind int

const (
	Text ColumnKind = iota
	Number
	Date
)

type ColumnSpec struct {
	Header string
	Kind   ColumnKind
}

// Job is the export of one dataset under one filter. It is never persisted.
type Job struct {
	ReportType core.Tab
	Columns    []ColumnSpec
	Rows       [][]string
	StartDate  core.Date
	EndDate    core.Date
}

// EmptyDatasetError is returned when there are no rows to export.
type EmptyDatasetError struct {
	ReportType core.Tab
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("nothing to export: %s report has no rows", e.ReportType)
}

// ErrTabMismatch is returned when the dataset does not belong to the requested report.
var ErrTabMismatch = errors.New("dataset does not match report type")

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var schemas = map[core.Tab][]ColumnSpec{
	core.TabWeeklyPayouts: {
		{"Week Period", Text},
		{"Total Wages", Number},
		{"Total Advances", Number},
		{"Net Payout", Number},
	},
	core.TabMaterialCosts: {
		{"Date", Date},
		{"Category", Text},
		{"Material", Text},
		{"Site", Text},
		{"Quantity", Number},
		{"Unit", Text},
		{"Amount Spent", Number},
	},
	core.TabSupervisorFlow: {
		{"Supervisor", Text},
		{"Email", Text},
		{"Total Cash In", Number},
		{"Total Expenses", Number},
		{"Net Balance", Number},
		{"Date", Date},
		{"Site", Text},
		{"Amount", Number},
		{"Description", Text},
	},
	core.TabDetailedLogs: {
		{"Date", Date},
		{"Type", Text},
		{"Site", Text},
		{"Name", Text},
		{"Category", Text},
		{"Quantity", Number},
		{"Unit", Text},
		{"Amount Spent", Number},
	},
}

// Columns returns a copy of the column schema for tab.
func Columns(tab core.Tab) ([]ColumnSpec, error) {
	cols, ok := schemas[tab]
	if !ok {
		return nil, core.ErrUnknownTab
	}
	return append([]ColumnSpec(nil), cols...), nil
}

// Headers returns the header row for tab.
func (j Job) Headers() []string {
	out := make([]string, len(j.Columns))
	for i, c := range j.Columns {
		out[i] = c.Header
	}
	return out
}

// FileName is <report-type>-<startDate>-to-<endDate>.<ext>.
func (j Job) FileName(ext string) string {
	return fmt.Sprintf("%s-%s-to-%s.%s", j.ReportType, j.StartDate, j.EndDate, ext)
}
