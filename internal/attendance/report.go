package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Filename is the download name for a session's report.
func (r Report) Filename(sessionID string) string {
	return fmt.Sprintf("attendance_%s_%s.csv", r.ClassCode, sessionID)
}

// WriteCSV renders the report as name,Status,Timestamp rows.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "Status", "Timestamp"}); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write([]string{row.Name, string(row.Status), row.Timestamp}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary counts recorded and unrecorded rows.
func (r Report) Summary() (present, notRecorded int) {
	for _, row := range r.Rows {
		if row.Recorded() {
			present++
		} else {
			notRecorded++
		}
	}
	return present, notRecorded
}
