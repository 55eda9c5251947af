package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used in URLs, storage and exports.
const DateLayout = "2006-01-02"

const (
	TabWeeklyPayouts  Tab = "weekly-payouts"
	TabMaterialCosts  Tab = "material-costs"
	TabSupervisorFlow Tab = "supervisor-flow"
	TabDetailedLogs   Tab = "detailed-logs"

	// DefaultTab is used whenever a tab value is missing or unknown.
	DefaultTab = TabWeeklyPayouts

	// All selects every site or every supervisor.
	All = "all"

	// DefaultWindowDays is the length of the default date range, both ends inclusive.
	DefaultWindowDays = 31
)

type (
	// Tab identifies one of the report views.
	Tab string

	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	// Filter is the single logical query behind the reports screen.
	Filter struct {
		Site       string `json:"site"`
		Supervisor string `json:"supervisor"`
		StartDate  Date   `json:"startDate"`
		EndDate    Date   `json:"endDate"`
		ActiveTab  Tab    `json:"activeTab"`
	}

	// Key identifies a request for one tab under one filter. It is comparable.
	Key struct {
		Tab        Tab
		Site       string
		Supervisor string
		StartDate  string
		EndDate    string
	}
)

var (
	ErrInvalidDate = errors.New("invalid date")
	ErrUnknownTab  = errors.New("unknown report tab")
)

// Tabs returns the known tabs in display order.
func Tabs() []Tab {
	return []Tab{TabWeeklyPayouts, TabMaterialCosts, TabSupervisorFlow, TabDetailedLogs}
}

// IsValid reports whether t is one of the four known tabs.
func (t Tab) IsValid() bool {
	switch t {
	case TabWeeklyPayouts, TabMaterialCosts, TabSupervisorFlow, TabDetailedLogs:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (t Tab) String() string {
	return string(t)
}

// ParseTab returns the tab named by s, or ErrUnknownTab.
func ParseTab(s string) (Tab, error) {
	t := Tab(strings.TrimSpace(s))
	if !t.IsValid() {
		return "", ErrUnknownTab
	}
	return t, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool {
	return d.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Timestamps are truncated to their date.
func (d *Date) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = Date{}
		return nil
	}
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return ErrInvalidDate
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted date, a quoted RFC 3339 timestamp or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ErrInvalidDate
	}
	return d.UnmarshalText([]byte(s[1 : len(s)-1]))
}

// DefaultFilter returns the filter used when neither URL nor storage provide a value:
// every site and supervisor, the weekly payouts tab and the 31 days ending today.
func DefaultFilter(today Date) Filter {
	return Filter{
		Site:       All,
		Supervisor: All,
		StartDate:  today.AddDays(-(DefaultWindowDays - 1)),
		EndDate:    today,
		ActiveTab:  DefaultTab,
	}
}

// Normalize applies the filter invariants: blank ids select everything, an unknown
// tab falls back to DefaultTab and an end date before the start is raised to the start.
func Normalize(candidate Filter) Filter {
	f := candidate
	f.Site = strings.TrimSpace(f.Site)
	if f.Site == "" {
		f.Site = All
	}
	f.Supervisor = strings.TrimSpace(f.Supervisor)
	if f.Supervisor == "" {
		f.Supervisor = All
	}
	if !f.ActiveTab.IsValid() {
		f.ActiveTab = DefaultTab
	}
	if !f.StartDate.IsZero() && f.EndDate.Before(f.StartDate) {
		f.EndDate = f.StartDate
	}
	return f
}

// Equal is structural equality.
func (f Filter) Equal(other Filter) bool {
	return f.Site == other.Site &&
		f.Supervisor == other.Supervisor &&
		f.StartDate.Equal(other.StartDate) &&
		f.EndDate.Equal(other.EndDate) &&
		f.ActiveTab == other.ActiveTab
}

// AllSites reports whether the filter selects every site.
func (f Filter) AllSites() bool {
	return f.Site == All
}

// AllSupervisors reports whether the filter selects every supervisor.
func (f Filter) AllSupervisors() bool {
	return f.Supervisor == All
}

// Contains reports whether d falls inside the filter's date range. Zero bounds are open.
func (f Filter) Contains(d Date) bool {
	if !f.StartDate.IsZero() && d.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && f.EndDate.Before(d) {
		return false
	}
	return true
}

// Key returns the request key for tab under this filter. The active tab is not part
// of the key; switching tabs never invalidates another tab's data.
func (f Filter) Key(tab Tab) Key {
	return Key{
		Tab:        tab,
		Site:       f.Site,
		Supervisor: f.Supervisor,
		StartDate:  f.StartDate.String(),
		EndDate:    f.EndDate.String(),
	}
}

// String renders the key for use as a cache or singleflight key.
func (k Key) String() string {
	return strings.Join([]string{string(k.Tab), k.Site, k.Supervisor, k.StartDate, k.EndDate}, "|")
}
