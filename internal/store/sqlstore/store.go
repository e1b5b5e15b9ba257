// Package sqlstore persists the roster and session tables in Postgres or
// SQLite. Saves are upsert-only transactions: rows are never deleted, so a
// failed or partial save can never lose previously recorded attendance.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"classroll/internal/attendance"
)

// Dialect selects placeholder style and migration set.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite3"
)

var sessionColumns = []string{
	"session_id", "position", "class_name", "class_code", "date",
	"start_time", "end_time", "room", "lecturer", "active", "created_at",
}

var entryColumns = []string{"name", "position", "student_id", "status", "timestamp", "location"}

// sessionSelect and entrySelect are the read columns: everything except
// position, which only orders rows.
var (
	sessionSelect = withoutPosition(sessionColumns)
	entrySelect   = withoutPosition(entryColumns)
)

// batchSize caps rows per INSERT statement. SQLite allows 32766 bind
// variables per statement and Postgres 65535; 500 rows of the widest table
// (11 columns) stays well under both.
const batchSize = 500

func withoutPosition(cols []string) []string {
	out := make([]string, 0, len(cols)-1)
	for _, c := range cols {
		if c != "position" {
			out = append(out, c)
		}
	}
	return out
}

// Store implements attendance.RosterStore and attendance.SessionStore.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// New creates a store on an open connection.
func New(db *sql.DB, dialect Dialect) *Store {
	var ph sq.PlaceholderFormat = sq.Question
	if dialect == Postgres {
		ph = sq.Dollar
	}
	return &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(ph),
	}
}

// LoadSessions returns every session in creation order.
func (s *Store) LoadSessions(ctx context.Context) ([]attendance.Session, error) {
	query, args, err := s.sb.Select(sessionSelect...).
		From("sessions").
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building sessions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []attendance.Session
	for rows.Next() {
		var sess attendance.Session
		if err := rows.Scan(&sess.ID, &sess.ClassName, &sess.ClassCode, &sess.Date,
			&sess.StartTime, &sess.EndTime, &sess.Room, &sess.Lecturer,
			&sess.Active, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// SaveSessions upserts every session in one transaction.
func (s *Store) SaveSessions(ctx context.Context, sessions []attendance.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	rows := make([][]any, len(sessions))
	for i, sess := range sessions {
		rows[i] = []any{sess.ID, i, sess.ClassName, sess.ClassCode, sess.Date,
			sess.StartTime, sess.EndTime, sess.Room, sess.Lecturer, sess.Active, sess.CreatedAt.UTC()}
	}

	return s.inTx(ctx, "saving sessions", func(tx *sql.Tx) error {
		return s.upsertBatches(ctx, tx, "sessions", sessionColumns, rows,
			upsertClause("session_id", sessionColumns[1:]...), "upserting sessions")
	})
}

// LoadRoster reads class codes, entries and marks, all in stored order.
func (s *Store) LoadRoster(ctx context.Context) (*attendance.Roster, error) {
	r := &attendance.Roster{}

	codes, err := s.loadClassCodes(ctx)
	if err != nil {
		return nil, err
	}
	r.ClassCodes = codes

	query, args, err := s.sb.Select(entrySelect...).
		From("roster_entries").
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building roster query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying roster entries: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var e attendance.Entry
		if err := rows.Scan(&e.Name, &e.StudentID, &e.Status, &e.Timestamp, &e.Location); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning roster entry: %w", err)
		}
		index[e.Name] = len(r.Entries)
		r.Entries = append(r.Entries, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roster entries: %w", err)
	}

	if err := s.loadMarks(ctx, r, index); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) loadClassCodes(ctx context.Context) ([]string, error) {
	query, args, err := s.sb.Select("class_code").From("roster_class_codes").OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building class code query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying class codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scanning class code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) loadMarks(ctx context.Context, r *attendance.Roster, index map[string]int) error {
	query, args, err := s.sb.Select("name", "class_code", "status", "timestamp").From("roster_marks").ToSql()
	if err != nil {
		return fmt.Errorf("building marks query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying marks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, code string
		var m attendance.Mark
		if err := rows.Scan(&name, &code, &m.Status, &m.Timestamp); err != nil {
			return fmt.Errorf("scanning mark: %w", err)
		}
		i, ok := index[name]
		if !ok {
			continue
		}
		if r.Entries[i].Marks == nil {
			r.Entries[i].Marks = make(map[string]attendance.Mark)
		}
		r.Entries[i].Marks[code] = m
	}
	return rows.Err()
}

// SaveRoster upserts class codes, entries and marks in one transaction.
func (s *Store) SaveRoster(ctx context.Context, r *attendance.Roster) error {
	codes := make([][]any, len(r.ClassCodes))
	for i, code := range r.ClassCodes {
		codes[i] = []any{code, i}
	}
	entries := make([][]any, len(r.Entries))
	var marks [][]any
	for i, e := range r.Entries {
		entries[i] = []any{e.Name, i, e.StudentID, string(e.Status), e.Timestamp, e.Location}
		for _, code := range r.ClassCodes {
			if m, ok := e.Marks[code]; ok {
				marks = append(marks, []any{e.Name, code, string(m.Status), m.Timestamp})
			}
		}
	}

	return s.inTx(ctx, "saving roster", func(tx *sql.Tx) error {
		if err := s.upsertBatches(ctx, tx, "roster_class_codes", []string{"class_code", "position"}, codes,
			upsertClause("class_code", "position"), "upserting class codes"); err != nil {
			return err
		}
		if err := s.upsertBatches(ctx, tx, "roster_entries", entryColumns, entries,
			upsertClause("name", entryColumns[1:]...), "upserting roster entries"); err != nil {
			return err
		}
		return s.upsertBatches(ctx, tx, "roster_marks", []string{"name", "class_code", "status", "timestamp"}, marks,
			"ON CONFLICT (name, class_code) DO UPDATE SET status = excluded.status, timestamp = excluded.timestamp",
			"upserting marks")
	})
}

// upsertBatches writes rows as multi-row INSERTs of at most batchSize rows,
// each ending in suffix.
func (s *Store) upsertBatches(ctx context.Context, tx *sql.Tx, table string, cols []string, rows [][]any, suffix, what string) error {
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		ins := s.sb.Insert(table).Columns(cols...)
		for _, row := range rows[start:end] {
			ins = ins.Values(row...)
		}
		if err := execBuilt(ctx, tx, ins.Suffix(suffix), what); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: beginning transaction: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: committing: %w", op, err)
	}
	return nil
}

func execBuilt(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder, what string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building %s: %w", what, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// upsertClause renders ON CONFLICT ... DO UPDATE, understood by both
// Postgres and SQLite 3.24+.
func upsertClause(key string, cols ...string) string {
	clause := "ON CONFLICT (" + key + ") DO UPDATE SET "
	for i, c := range cols {
		if i > 0 {
			clause += ", "
		}
		clause += c + " = excluded." + c
	}
	return clause
}

// Healthy pings the database with a short deadline.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}
