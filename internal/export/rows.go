package export

import (
	"fmt"

	"sitereports/internal/core"
)

// Build flattens ds into the rows of tab's schema, using the filter's dates
// for the file name. Nested reports are flattened here even if a caller
// already flattened them for display.
func Build(tab core.Tab, f core.Filter, ds core.Dataset) (Job, error) {
	cols, err := Columns(tab)
	if err != nil {
		return Job{}, err
	}
	if ds == nil {
		return Job{}, &EmptyDatasetError{ReportType: tab}
	}
	ds = core.Deref(ds)
	if ds.Tab() != tab {
		return Job{}, fmt.Errorf("%w: want %s, got %s", ErrTabMismatch, tab, ds.Tab())
	}

	var rows [][]string
	switch v := ds.(type) {
	case core.WeeklyPayouts:
		rows = weeklyPayoutRows(v)
	case core.MaterialCosts:
		rows = materialCostRows(v)
	case core.SupervisorFlow:
		rows = supervisorFlowRows(v)
	case core.DetailedLogs:
		rows = detailedLogRows(v)
	}

	return Job{
		ReportType: tab,
		Columns:    cols,
		Rows:       rows,
		StartDate:  f.StartDate,
		EndDate:    f.EndDate,
	}, nil
}

func weeklyPayoutRows(ds core.WeeklyPayouts) [][]string {
	rows := make([][]string, 0, len(ds.Weeks))
	for _, w := range ds.Weeks {
		rows = append(rows, []string{
			w.WeekStart.String() + " - " + w.WeekEnd.String(),
			core.FormatAmount(w.TotalWages),
			core.FormatAmount(w.TotalAdvances),
			core.FormatAmount(w.TotalWages.Sub(w.TotalAdvances)),
		})
	}
	return rows
}

func materialCostRows(ds core.MaterialCosts) [][]string {
	var rows [][]string
	for _, c := range ds.Categories {
		for _, it := range c.Items {
			category := it.CategoryName
			if category == "" {
				category = c.CategoryName
			}
			rows = append(rows, []string{
				it.Date.String(),
				category,
				it.MaterialName,
				it.SiteID,
				core.FormatAmount(it.Quantity),
				it.Unit,
				core.FormatAmount(it.AmountSpent),
			})
		}
	}
	return rows
}

// A supervisor without transactions still gets one row with blank
// transaction columns.
func supervisorFlowRows(ds core.SupervisorFlow) [][]string {
	var rows [][]string
	for _, s := range ds.Supervisors {
		head := []string{
			s.SupervisorName,
			s.SupervisorEmail,
			core.FormatAmount(s.TotalCashIn),
			core.FormatAmount(s.TotalExpenses),
			core.FormatAmount(s.TotalCashIn.Sub(s.TotalExpenses)),
		}
		if len(s.Transactions) == 0 {
			rows = append(rows, append(append([]string(nil), head...), "", "", "", ""))
			continue
		}
		for _, tx := range s.Transactions {
			row := append([]string(nil), head...)
			row = append(row, tx.Date.String(), tx.Site, core.FormatAmount(tx.Amount), tx.Description)
			rows = append(rows, row)
		}
	}
	return rows
}

func detailedLogRows(ds core.DetailedLogs) [][]string {
	rows := make([][]string, 0, len(ds.Entries))
	for _, e := range ds.Entries {
		rows = append(rows, []string{
			e.Date.String(),
			string(e.Type),
			e.Site,
			e.Name,
			e.Category,
			core.FormatOptionalAmount(e.Quantity),
			e.Unit,
			core.FormatAmount(e.AmountSpent),
		})
	}
	return rows
}
