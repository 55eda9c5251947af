// Package aggregate derives the headline figures shown above each report.
// Every function is pure and never modifies its input.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"sitereports/internal/core"
)

var hundred = decimal.NewFromInt(100)

type (
	// Summary is the derived view of one dataset.
	Summary interface {
		Tab() core.Tab
	}

	PayoutTotals struct {
		Weeks         int             `json:"weeks"`
		TotalWages    decimal.Decimal `json:"totalWages"`
		TotalAdvances decimal.Decimal `json:"totalAdvances"`
		NetPayout     decimal.Decimal `json:"netPayout"`
	}

	CategoryShare struct {
		CategoryName string          `json:"categoryName"`
		TotalSpent   decimal.Decimal `json:"totalSpent"`

		// Percentage of the grand total, 0..100. Zero when the grand total is zero.
		Percentage float64 `json:"percentage"`
		Color      string  `json:"color"`
		Items      int     `json:"items"`
	}

	MaterialBreakdown struct {
		GrandTotal decimal.Decimal `json:"grandTotal"`
		Categories []CategoryShare `json:"categories"`
	}

	SupervisorNet struct {
		SupervisorName  string          `json:"supervisorName"`
		SupervisorEmail string          `json:"supervisorEmail"`
		TotalCashIn     decimal.Decimal `json:"totalCashIn"`
		TotalExpenses   decimal.Decimal `json:"totalExpenses"`

		// NetBalance is always cash in minus expenses.
		NetBalance         decimal.Decimal `json:"netBalance"`
		ReportedNetBalance decimal.Decimal `json:"reportedNetBalance"`
		Mismatch           bool            `json:"mismatch"`
		Transactions       int             `json:"transactions"`
	}

	SupervisorTotals struct {
		Supervisors   []SupervisorNet `json:"supervisors"`
		TotalCashIn   decimal.Decimal `json:"totalCashIn"`
		TotalExpenses decimal.Decimal `json:"totalExpenses"`
		NetBalance    decimal.Decimal `json:"netBalance"`
	}

	TypeTotal struct {
		Type  core.LogType    `json:"type"`
		Count int             `json:"count"`
		Total decimal.Decimal `json:"total"`
	}

	LogBreakdown struct {
		TotalEntries int             `json:"totalEntries"`
		TotalSpent   decimal.Decimal `json:"totalSpent"`

		// ByType lists labor, material, advance and other, in that order.
		ByType []TypeTotal  `json:"byType"`
		Weeks  []WeekBucket `json:"weeks"`
	}

	// WeekBucket sums entries falling in one Monday-to-Sunday week.
	WeekBucket struct {
		WeekStart core.Date       `json:"weekStart"`
		WeekEnd   core.Date       `json:"weekEnd"`
		Count     int             `json:"count"`
		Total     decimal.Decimal `json:"total"`
	}
)

func (PayoutTotals) Tab() core.Tab      { return core.TabWeeklyPayouts }
func (MaterialBreakdown) Tab() core.Tab { return core.TabMaterialCosts }
func (SupervisorTotals) Tab() core.Tab  { return core.TabSupervisorFlow }
func (LogBreakdown) Tab() core.Tab      { return core.TabDetailedLogs }

// Summarize dispatches to the aggregator for the dataset's tab.
func Summarize(ds core.Dataset) (Summary, error) {
	switch v := core.Deref(ds).(type) {
	case core.WeeklyPayouts:
		return WeeklyPayouts(v), nil
	case core.MaterialCosts:
		return MaterialCosts(v), nil
	case core.SupervisorFlow:
		return SupervisorFlow(v), nil
	case core.DetailedLogs:
		return DetailedLogs(v), nil
	default:
		return nil, core.ErrUnknownTab
	}
}

// WeeklyPayouts sums wages and advances over the weeks and recomputes the net
// payout locally; the server summary is ignored.
func WeeklyPayouts(ds core.WeeklyPayouts) PayoutTotals {
	t := PayoutTotals{Weeks: len(ds.Weeks)}
	for _, w := range ds.Weeks {
		t.TotalWages = t.TotalWages.Add(w.TotalWages)
		t.TotalAdvances = t.TotalAdvances.Add(w.TotalAdvances)
	}
	t.NetPayout = t.TotalWages.Sub(t.TotalAdvances)
	return t
}

// MaterialCosts computes each category's share of the grand total and assigns
// colors by position in server order.
func MaterialCosts(ds core.MaterialCosts) MaterialBreakdown {
	out := MaterialBreakdown{
		GrandTotal: ds.TotalSpent,
		Categories: make([]CategoryShare, len(ds.Categories)),
	}
	for i, c := range ds.Categories {
		out.Categories[i] = CategoryShare{
			CategoryName: c.CategoryName,
			TotalSpent:   c.TotalSpent,
			Percentage:   Percentage(c.TotalSpent, ds.TotalSpent),
			Color:        CategoryColor(i),
			Items:        len(c.Items),
		}
	}
	return out
}

// Percentage returns part/total*100, or 0 when total is zero.
func Percentage(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}

// SupervisorFlow recomputes every net balance as cash in minus expenses and
// flags, without failing, supervisors whose reported balance disagrees.
func SupervisorFlow(ds core.SupervisorFlow) SupervisorTotals {
	out := SupervisorTotals{Supervisors: make([]SupervisorNet, len(ds.Supervisors))}
	for i, s := range ds.Supervisors {
		net := s.TotalCashIn.Sub(s.TotalExpenses)
		out.Supervisors[i] = SupervisorNet{
			SupervisorName:     s.SupervisorName,
			SupervisorEmail:    s.SupervisorEmail,
			TotalCashIn:        s.TotalCashIn,
			TotalExpenses:      s.TotalExpenses,
			NetBalance:         net,
			ReportedNetBalance: s.NetBalance,
			Mismatch:           !net.Equal(s.NetBalance),
			Transactions:       len(s.Transactions),
		}
		out.TotalCashIn = out.TotalCashIn.Add(s.TotalCashIn)
		out.TotalExpenses = out.TotalExpenses.Add(s.TotalExpenses)
	}
	out.NetBalance = out.TotalCashIn.Sub(out.TotalExpenses)
	return out
}

// DetailedLogs counts and totals entries per type. Unrecognized types land in
// the "other" bucket so the counts always add up to the number of entries.
func DetailedLogs(ds core.DetailedLogs) LogBreakdown {
	index := map[core.LogType]int{}
	out := LogBreakdown{TotalEntries: len(ds.Entries)}
	for i, t := range core.LogTypes() {
		index[t] = i
		out.ByType = append(out.ByType, TypeTotal{Type: t})
	}
	for _, e := range ds.Entries {
		t := e.Type
		if !t.Recognized() {
			t = core.LogOther
		}
		b := &out.ByType[index[t]]
		b.Count++
		b.Total = b.Total.Add(e.AmountSpent)
		out.TotalSpent = out.TotalSpent.Add(e.AmountSpent)
	}
	out.Weeks = WeeklyBuckets(ds.Entries)
	return out
}

// WeeklyBuckets groups entries into Monday-start weeks, oldest first. Entries
// without a date are skipped.
func WeeklyBuckets(entries []core.LogEntry) []WeekBucket {
	byStart := map[string]*WeekBucket{}
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		start := WeekStart(e.Date)
		key := start.String()
		b, ok := byStart[key]
		if !ok {
			b = &WeekBucket{WeekStart: start, WeekEnd: start.AddDays(6)}
			byStart[key] = b
		}
		b.Count++
		b.Total = b.Total.Add(e.AmountSpent)
	}

	out := make([]WeekBucket, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	return out
}

// WeekStart returns the Monday on or before d.
func WeekStart(d core.Date) core.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}
