package attendance

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Roster is the in-memory form of the roster table. ClassCodes lists every
// class code ever recorded, in the order it was introduced; it only grows.
type Roster struct {
	ClassCodes []string
	Entries    []Entry
}

// Clone returns a deep copy so callers can mutate without touching the
// stored table until they save.
func (r *Roster) Clone() *Roster {
	out := &Roster{
		ClassCodes: slices.Clone(r.ClassCodes),
		Entries:    make([]Entry, len(r.Entries)),
	}
	for i, e := range r.Entries {
		out.Entries[i] = e.clone()
	}
	return out
}

// HasClassCode reports whether columns exist for the class code.
func (r *Roster) HasClassCode(code string) bool {
	return slices.Contains(r.ClassCodes, code)
}

// EnsureClassColumns adds the class code's status/timestamp columns if they
// are missing. Existing entries read the new columns as not recorded.
// It returns true when the schema grew.
func (r *Roster) EnsureClassColumns(code string) bool {
	if r.HasClassCode(code) {
		return false
	}
	r.ClassCodes = append(r.ClassCodes, code)
	return true
}

// FindBySubstring returns the index of the first entry matching query.
func (r *Roster) FindBySubstring(query string) (int, bool) {
	return Match(query, r.Entries)
}

// Index returns the position of the entry with exactly this name.
func (r *Roster) Index(name string) (int, bool) {
	for i := range r.Entries {
		if r.Entries[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// AddEntry appends a new attendee. Names must be non-blank and unique.
func (r *Roster) AddEntry(name, studentID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, ok := r.Index(name); ok {
		return fmt.Errorf("%w: roster entry %q already exists", ErrValidation, name)
	}
	r.Entries = append(r.Entries, Entry{Name: name, StudentID: strings.TrimSpace(studentID)})
	return nil
}

// RecordPresence marks entry idx present for the class code at the given
// time. The global summary fields are only written the first time the entry
// is ever marked.
func (r *Roster) RecordPresence(idx int, code string, at time.Time, location string) {
	r.EnsureClassColumns(code)
	stamp := at.Format(TimestampLayout)

	e := &r.Entries[idx]
	if e.Marks == nil {
		e.Marks = make(map[string]Mark)
	}
	e.Marks[code] = Mark{Status: StatusPresent, Timestamp: stamp}

	if !e.Status.IsSet() {
		e.Status = StatusPresent
		e.Timestamp = stamp
		e.Location = location
	}
}

// MarkAllAbsentForDefaultSession finalizes the standing session: every entry
// whose global status is still unset becomes absent. It returns how many
// entries changed.
func (r *Roster) MarkAllAbsentForDefaultSession(location string) int {
	n := 0
	for i := range r.Entries {
		e := &r.Entries[i]
		if e.Status.IsSet() {
			continue
		}
		e.Status = StatusAbsent
		e.Timestamp = ""
		e.Location = location
		n++
	}
	return n
}

// ExportReport projects the class code's columns for every entry, in store
// order. Entries without data for the code get an empty status.
func (r *Roster) ExportReport(code string) (Report, error) {
	if !r.HasClassCode(code) {
		return Report{}, fmt.Errorf("%w: class code %q has no attendance recorded", ErrNotFound, code)
	}
	rep := Report{ClassCode: code, Rows: make([]ReportRow, 0, len(r.Entries))}
	for _, e := range r.Entries {
		m := e.Mark(code)
		rep.Rows = append(rep.Rows, ReportRow{Name: e.Name, Status: m.Status, Timestamp: m.Timestamp})
	}
	return rep, nil
}
