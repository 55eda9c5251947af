package core

import "github.com/shopspring/decimal"

// Dataset is an immutable snapshot of one report response. Callers must not
// modify the slices it exposes; a newer fetch replaces the whole value.
type Dataset interface {
	// Tab names the report the dataset belongs to.
	Tab() Tab
	// Len returns the number of top-level rows.
	Len() int
}

type (
	// WeekPayout is one row of the weekly payouts report.
	WeekPayout struct {
		WeekStart     Date            `json:"weekStart"`
		WeekEnd       Date            `json:"weekEnd"`
		TotalWages    decimal.Decimal `json:"totalWages"`
		TotalAdvances decimal.Decimal `json:"totalAdvances"`
		NetPayout     decimal.Decimal `json:"netPayout"`
	}

	// PayoutSummary holds the totals reported by the server.
	PayoutSummary struct {
		TotalWages    decimal.Decimal `json:"totalWages"`
		TotalAdvances decimal.Decimal `json:"totalAdvances"`
		NetPayout     decimal.Decimal `json:"netPayout"`
	}

	WeeklyPayouts struct {
		Weeks   []WeekPayout  `json:"weeks"`
		Summary PayoutSummary `json:"summary"`
	}

	MaterialItem struct {
		Date         Date            `json:"date"`
		MaterialName string          `json:"materialName"`
		CategoryName string          `json:"categoryName"`
		SiteID       string          `json:"siteId"`
		Quantity     decimal.Decimal `json:"quantity"`
		Unit         string          `json:"unit"`
		AmountSpent  decimal.Decimal `json:"amountSpent"`
	}

	MaterialCategory struct {
		CategoryName string          `json:"categoryName"`
		TotalSpent   decimal.Decimal `json:"totalSpent"`
		Items        []MaterialItem  `json:"items"`
	}

	MaterialCosts struct {
		Categories []MaterialCategory `json:"categories"`
		TotalSpent decimal.Decimal    `json:"totalSpent"`
	}

	Transaction struct {
		Date        Date            `json:"date"`
		Site        string          `json:"site"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}

	SupervisorBalance struct {
		SupervisorID    string          `json:"supervisorId,omitempty"`
		SupervisorName  string          `json:"supervisorName"`
		SupervisorEmail string          `json:"supervisorEmail"`
		TotalCashIn     decimal.Decimal `json:"totalCashIn"`
		TotalExpenses   decimal.Decimal `json:"totalExpenses"`
		NetBalance      decimal.Decimal `json:"netBalance"`
		Transactions    []Transaction   `json:"transactions"`
	}

	SupervisorFlow struct {
		Supervisors []SupervisorBalance `json:"supervisors"`
	}

	// LogType is the kind of a detailed log entry. Unknown values are kept as sent.
	LogType string

	LogEntry struct {
		Date        Date             `json:"date"`
		Type        LogType          `json:"type"`
		Site        string           `json:"site"`
		Name        string           `json:"name"`
		Category    string           `json:"category,omitempty"`
		Quantity    *decimal.Decimal `json:"quantity,omitempty"`
		Unit        string           `json:"unit,omitempty"`
		AmountSpent decimal.Decimal  `json:"amountSpent"`
	}

	// TypeSummary is a count and total for one log type.
	TypeSummary struct {
		Count int             `json:"count"`
		Total decimal.Decimal `json:"total"`
	}

	LogSummary struct {
		TotalEntries int                     `json:"totalEntries"`
		ByType       map[LogType]TypeSummary `json:"byType,omitempty"`
	}

	DetailedLogs struct {
		Entries []LogEntry `json:"entries"`
		Summary LogSummary `json:"summary"`
	}
)

const (
	LogLabor    LogType = "labor"
	LogMaterial LogType = "material"
	LogAdvance  LogType = "advance"
	// LogOther collects entries whose type is not recognized.
	LogOther LogType = "other"
)

// LogTypes returns the recognized types followed by LogOther.
func LogTypes() []LogType {
	return []LogType{LogLabor, LogMaterial, LogAdvance, LogOther}
}

// Recognized reports whether t is one of labor, material or advance.
func (t LogType) Recognized() bool {
	switch t {
	case LogLabor, LogMaterial, LogAdvance:
		return true
	default:
		return false
	}
}

func (WeeklyPayouts) Tab() Tab  { return TabWeeklyPayouts }
func (MaterialCosts) Tab() Tab  { return TabMaterialCosts }
func (SupervisorFlow) Tab() Tab { return TabSupervisorFlow }
func (DetailedLogs) Tab() Tab   { return TabDetailedLogs }

func (d WeeklyPayouts) Len() int  { return len(d.Weeks) }
func (d MaterialCosts) Len() int  { return len(d.Categories) }
func (d SupervisorFlow) Len() int { return len(d.Supervisors) }
func (d DetailedLogs) Len() int   { return len(d.Entries) }

// NewDataset returns an empty dataset of the shape served for tab.
func NewDataset(tab Tab) (Dataset, error) {
	switch tab {
	case TabWeeklyPayouts:
		return &WeeklyPayouts{}, nil
	case TabMaterialCosts:
		return &MaterialCosts{}, nil
	case TabSupervisorFlow:
		return &SupervisorFlow{}, nil
	case TabDetailedLogs:
		return &DetailedLogs{}, nil
	default:
		return nil, ErrUnknownTab
	}
}

// Deref turns a pointer produced by NewDataset into the value form stored by callers.
func Deref(ds Dataset) Dataset {
	switch v := ds.(type) {
	case *WeeklyPayouts:
		return *v
	case *MaterialCosts:
		return *v
	case *SupervisorFlow:
		return *v
	case *DetailedLogs:
		return *v
	default:
		return ds
	}
}
