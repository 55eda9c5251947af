package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"sitereports/internal/core"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is an encoded export ready to download.
type File struct {
	FileName    string
	ContentType string
	Content     []byte
	Rows        int
}

// Encode builds the job for ds and renders it as CSV. Two calls with the same
// input return byte-identical files.
func Encode(tab core.Tab, f core.Filter, ds core.Dataset) (File, error) {
	job, err := Build(tab, f, ds)
	if err != nil {
		return File{}, err
	}
	return EncodeCSV(job)
}

// EncodeCSV renders the header and rows with standard quoting and \n line endings.
func EncodeCSV(job Job) (File, error) {
	if len(job.Rows) == 0 {
		return File{}, &EmptyDatasetError{ReportType: job.ReportType}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(job.Headers()); err != nil {
		return File{}, fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(job.Rows); err != nil {
		return File{}, fmt.Errorf("write rows: %w", err)
	}

	return File{
		FileName:    job.FileName(FormatCSV),
		ContentType: ContentTypeCSV,
		Content:     buf.Bytes(),
		Rows:        len(job.Rows),
	}, nil
}

// EncodeAs renders the job in the named format.
func EncodeAs(job Job, format string) (File, error) {
	switch format {
	case "", FormatCSV:
		return EncodeCSV(job)
	case FormatXLSX:
		return EncodeXLSX(job)
	default:
		return File{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}
