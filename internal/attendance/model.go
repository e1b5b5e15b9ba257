package attendance

import (
	"strings"
	"time"
)

// Status is the symbol stored in roster status fields.
type Status string

const (
	StatusUnset   Status = ""
	StatusPresent Status = "✔"
	StatusAbsent  Status = "❌"
)

// IsSet reports whether any status has been recorded. Legacy files carry
// variants of the symbols (e.g. with a variation selector), so any
// non-blank value counts.
func (s Status) IsSet() bool {
	return strings.TrimSpace(string(s)) != ""
}

// Outcome is the result of reconciling one submission.
type Outcome string

const (
	OutcomePresent Outcome = "present"
	OutcomeAbsent  Outcome = "absent"
)

// Symbol returns the roster status symbol for the outcome.
func (o Outcome) Symbol() Status {
	if o == OutcomePresent {
		return StatusPresent
	}
	return StatusAbsent
}

// TimestampLayout is the display layout used for roster timestamps.
const TimestampLayout = "02 January 2006, 03:04 PM"

// SessionFields are the descriptive fields supplied when a session is opened.
type SessionFields struct {
	ClassName string `json:"class_name" validate:"required"`
	ClassCode string `json:"class_code" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Room      string `json:"room" validate:"required"`
	Lecturer  string `json:"lecturer" validate:"required"`
}

func (f SessionFields) trimmed() SessionFields {
	return SessionFields{
		ClassName: strings.TrimSpace(f.ClassName),
		ClassCode: strings.TrimSpace(f.ClassCode),
		Date:      strings.TrimSpace(f.Date),
		StartTime: strings.TrimSpace(f.StartTime),
		EndTime:   strings.TrimSpace(f.EndTime),
		Room:      strings.TrimSpace(f.Room),
		Lecturer:  strings.TrimSpace(f.Lecturer),
	}
}

// Session is one opened class period.
type Session struct {
	ID string `json:"session_id"`
	SessionFields
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Eligible reports whether the session still accepts submissions: it must be
// active and created no longer than window before now.
func (s Session) Eligible(now time.Time, window time.Duration) bool {
	return s.Active && now.Sub(s.CreatedAt) <= window
}

// ExpiresAt is the end of the session's lifetime under a fixed TTL.
func (s Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Mark is the per-class-code attendance record of one entry.
type Mark struct {
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Entry is one known attendee.
type Entry struct {
	Name      string          `json:"name"`
	StudentID string          `json:"student_id,omitempty"`
	Status    Status          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Location  string          `json:"location"`
	Marks     map[string]Mark `json:"marks,omitempty"`
}

// Mark returns the mark for a class code; the zero Mark means not recorded.
func (e Entry) Mark(classCode string) Mark {
	return e.Marks[classCode]
}

func (e Entry) clone() Entry {
	out := e
	if e.Marks != nil {
		out.Marks = make(map[string]Mark, len(e.Marks))
		for k, v := range e.Marks {
			out.Marks[k] = v
		}
	}
	return out
}

// ReportRow is one line of a per-class-code report.
type ReportRow struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Recorded reports whether the row holds data for the class code.
func (r ReportRow) Recorded() bool {
	return r.Status.IsSet()
}

// Report is the projection of one class code's columns.
type Report struct {
	ClassCode string      `json:"class_code"`
	Rows      []ReportRow `json:"rows"`
}
