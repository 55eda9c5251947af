package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExportCompletedType is the AMQP message type of ExportCompletedMessage.
const ExportCompletedType = "report.exported"

// ExportCompletedMessage records that a report file was downloaded.
type ExportCompletedMessage struct {
	ID         string    `json:"id"`
	ReportType string    `json:"report_type"`
	FileName   string    `json:"file_name"`
	Format     string    `json:"format"`
	Rows       int       `json:"rows"`
	Site       string    `json:"site"`
	Supervisor string    `json:"supervisor"`
	StartDate  string    `json:"start_date"`
	EndDate    string    `json:"end_date"`
	ClientID   string    `json:"client_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewExportCompletedMessage stamps a new event with a random id and the current time.
func NewExportCompletedMessage(reportType, fileName, format string, rows int) *ExportCompletedMessage {
	return &ExportCompletedMessage{
		ID:         uuid.NewString(),
		ReportType: reportType,
		FileName:   fileName,
		Format:     format,
		Rows:       rows,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}
