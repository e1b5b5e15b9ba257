// Package csvfile keeps the roster and session tables as two flat CSV files,
// attendance.csv and sessions.csv, in the layout older deployments already
// have on disk. Each class code owns a <code>_status and <code>_timestamp
// column pair appended after the fixed columns.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"classroll/internal/attendance"
)

const (
	RosterFile   = "attendance.csv"
	SessionsFile = "sessions.csv"

	statusSuffix    = "_status"
	timestampSuffix = "_timestamp"
)

var rosterHeader = []string{"name", "student_id", "status", "timestamp", "location"}

var sessionsHeader = []string{
	"session_id", "class_name", "class_code", "date", "start_time",
	"end_time", "room", "lecturer", "qr_active", "created_at",
}

// Store implements attendance.RosterStore and attendance.SessionStore on
// top of a data directory.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New prepares dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir is the data directory.
func (s *Store) Dir() string { return s.dir }

// LoadRoster reads attendance.csv. A missing file is an empty roster.
func (s *Store) LoadRoster(_ context.Context) (*attendance.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(RosterFile)
	if err != nil {
		return nil, err
	}
	r := &attendance.Roster{}
	if len(records) == 0 {
		return r, nil
	}

	cols := indexHeader(records[0])
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("%s: missing name column", RosterFile)
	}
	r.ClassCodes = classCodes(records[0])

	for _, rec := range records[1:] {
		e := attendance.Entry{
			Name:      field(rec, cols, "name"),
			StudentID: field(rec, cols, "student_id"),
			Status:    attendance.Status(field(rec, cols, "status")),
			Timestamp: field(rec, cols, "timestamp"),
			Location:  field(rec, cols, "location"),
		}
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		for _, code := range r.ClassCodes {
			m := attendance.Mark{
				Status:    attendance.Status(field(rec, cols, code+statusSuffix)),
				Timestamp: field(rec, cols, code+timestampSuffix),
			}
			if m == (attendance.Mark{}) {
				continue
			}
			if e.Marks == nil {
				e.Marks = make(map[string]attendance.Mark)
			}
			e.Marks[code] = m
		}
		r.Entries = append(r.Entries, e)
	}
	return r, nil
}

// SaveRoster rewrites attendance.csv atomically.
func (s *Store) SaveRoster(_ context.Context, r *attendance.Roster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header := append([]string(nil), rosterHeader...)
	for _, code := range r.ClassCodes {
		header = append(header, code+statusSuffix, code+timestampSuffix)
	}
	records := [][]string{header}
	for _, e := range r.Entries {
		rec := []string{e.Name, e.StudentID, string(e.Status), e.Timestamp, e.Location}
		for _, code := range r.ClassCodes {
			m := e.Mark(code)
			rec = append(rec, string(m.Status), m.Timestamp)
		}
		records = append(records, rec)
	}
	return s.write(RosterFile, records)
}

// LoadSessions reads sessions.csv. A missing file is an empty registry.
func (s *Store) LoadSessions(_ context.Context) ([]attendance.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(SessionsFile)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := indexHeader(records[0])
	sessions := make([]attendance.Session, 0, len(records)-1)
	for i, rec := range records[1:] {
		created, err := parseCreatedAt(field(rec, cols, "created_at"))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", SessionsFile, i+2, err)
		}
		sessions = append(sessions, attendance.Session{
			ID: field(rec, cols, "session_id"),
			SessionFields: attendance.SessionFields{
				ClassName: field(rec, cols, "class_name"),
				ClassCode: field(rec, cols, "class_code"),
				Date:      field(rec, cols, "date"),
				StartTime: field(rec, cols, "start_time"),
				EndTime:   field(rec, cols, "end_time"),
				Room:      field(rec, cols, "room"),
				Lecturer:  field(rec, cols, "lecturer"),
			},
			Active:    parseActive(field(rec, cols, "qr_active")),
			CreatedAt: created,
		})
	}
	return sessions, nil
}

// SaveSessions rewrites sessions.csv atomically.
func (s *Store) SaveSessions(_ context.Context, sessions []attendance.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := [][]string{sessionsHeader}
	for _, sess := range sessions {
		records = append(records, []string{
			sess.ID, sess.ClassName, sess.ClassCode, sess.Date, sess.StartTime,
			sess.EndTime, sess.Room, sess.Lecturer, formatActive(sess.Active),
			sess.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return s.write(SessionsFile, records)
}

func (s *Store) read(name string) ([][]string, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		records = append(records, rec)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

// write replaces name with records through a temp file and rename, so a
// crash leaves either the old or the new file.
func (s *Store) write(name string, records [][]string) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	cw := csv.NewWriter(tmp)
	if err := cw.WriteAll(records); err != nil {
		cleanup()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols
}

// classCodes lists codes in header order. A code counts once its status
// column exists; the timestamp column may be missing in hand-edited files.
func classCodes(header []string) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, h := range header {
		h = strings.TrimSpace(h)
		code, ok := strings.CutSuffix(h, statusSuffix)
		if !ok || code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}

func field(rec []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	v := rec[i]
	if v == "nan" || v == "NaN" {
		return ""
	}
	return v
}

func formatActive(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseActive(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseCreatedAt(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", v)
}
