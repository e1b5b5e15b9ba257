package attendance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind names what happened in an Event.
type EventKind string

const (
	EventSessionCreated EventKind = "session_created"
	EventSessionClosed  EventKind = "session_closed"
	EventSubmission     EventKind = "submission"
	EventRollover       EventKind = "rollover"
)

// Event describes one state change (or, for unmatched submissions, one
// echoed outcome) for observers such as metrics and the submission journal.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	ClassCode string    `json:"class_code,omitempty"`
	Query     string    `json:"query,omitempty"`
	Name      string    `json:"name,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Marked    int       `json:"marked,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives events after the corresponding write has been persisted
// and the coordinator lock released. Observe may be called concurrently
// from different requests.
type Observer interface {
	Observe(ctx context.Context, evt Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, evt Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, evt Event) { f(ctx, evt) }

// Config tunes the coordinator.
type Config struct {
	// Location is written into the global summary of newly marked entries.
	Location string
	// ActivityWindow bounds how long an open session stays eligible.
	ActivityWindow time.Duration
	// StandingTTL is the fixed lifetime of a session in single-session mode.
	StandingTTL time.Duration
	// RequireEligible rejects submissions to closed or stale sessions with
	// ErrSessionExpired. When false any existing session accepts them.
	RequireEligible bool
}

// SubmitResult is what a submission resolves to.
type SubmitResult struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Session Session `json:"session"`
}

// Service reconciles submissions against the roster. It is the single
// writer for both stores: every read-modify-write runs under mu.
type Service struct {
	mu        sync.Mutex
	sessions  *Registry
	roster    RosterStore
	clock     Clock
	cfg       Config
	log       zerolog.Logger
	observers []Observer
	// pending holds events raised under mu until unlockAndEmit delivers them.
	pending []Event
}

// NewService wires the coordinator to its stores.
func NewService(sessions SessionStore, roster RosterStore, clock Clock, cfg Config, log zerolog.Logger) *Service {
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = 10 * time.Hour
	}
	if cfg.StandingTTL <= 0 {
		cfg.StandingTTL = 10 * time.Minute
	}
	return &Service{
		sessions: NewRegistry(sessions, clock, cfg.ActivityWindow),
		roster:   roster,
		clock:    clock,
		cfg:      cfg,
		log:      log.With().Str("component", "attendance").Logger(),
	}
}

// AddObserver registers o for every subsequent event.
func (s *Service) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// emit queues evt for delivery; callers hold mu.
func (s *Service) emit(evt Event) {
	s.pending = append(s.pending, evt)
}

// unlockAndEmit releases mu, then hands the queued events to observers.
func (s *Service) unlockAndEmit(ctx context.Context) {
	events, observers := s.pending, s.observers
	s.pending = nil
	s.mu.Unlock()

	for _, evt := range events {
		for _, o := range observers {
			o.Observe(ctx, evt)
		}
	}
}

// Registry exposes the underlying session registry for read-only callers.
func (s *Service) Registry() *Registry { return s.sessions }

// CreateSession opens a new session and returns it.
func (s *Service) CreateSession(ctx context.Context, fields SessionFields) (Session, error) {
	s.mu.Lock()
	defer s.unlockAndEmit(ctx)
	return s.createLocked(ctx, fields)
}

func (s *Service) createLocked(ctx context.Context, fields SessionFields) (Session, error) {
	sess, err := s.sessions.Create(ctx, fields)
	if err != nil {
		return Session{}, err
	}
	s.log.Info().
		Str("session_id", sess.ID).
		Str("class_code", sess.ClassCode).
		Msg("Session opened")
	s.emit(Event{Kind: EventSessionCreated, SessionID: sess.ID, ClassCode: sess.ClassCode, At: sess.CreatedAt})
	return sess, nil
}

// GetSession returns the session with the given id.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Get(ctx, id)
}

// CloseSession deactivates a session; see Registry.Close.
func (s *Service) CloseSession(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.unlockAndEmit(ctx)
	return s.closeLocked(ctx, id)
}

func (s *Service) closeLocked(ctx context.Context, id string) (bool, error) {
	found, err := s.sessions.Close(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		s.log.Info().Str("session_id", id).Msg("Session closed")
		s.emit(Event{Kind: EventSessionClosed, SessionID: id, At: s.clock.Now()})
	}
	return found, nil
}

// ListEligibleSessions returns the sessions open for submissions at now.
func (s *Service) ListEligibleSessions(ctx context.Context, now time.Time) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.ListEligible(ctx, now)
}

// ListSessions returns every session in the registry.
func (s *Service) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.List(ctx)
}

// Submit reconciles one attendee submission. A matched name is recorded as
// present and persisted; an unmatched name is echoed back as absent without
// touching the roster.
func (s *Service) Submit(ctx context.Context, sessionID, rawName string) (SubmitResult, error) {
	name := strings.TrimSpace(rawName)
	if name == "" {
		return SubmitResult{}, fmt.Errorf("%w: name is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.unlockAndEmit(ctx)

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.clock.Now()
	if s.cfg.RequireEligible && !sess.Eligible(now, s.cfg.ActivityWindow) {
		return SubmitResult{}, fmt.Errorf("%w: session %q no longer accepts submissions", ErrSessionExpired, sessionID)
	}

	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return SubmitResult{}, persistErr("load roster", err)
	}
	// Column creation stays in memory until a presence write persists it.
	roster.EnsureClassColumns(sess.ClassCode)

	evt := Event{Kind: EventSubmission, SessionID: sess.ID, ClassCode: sess.ClassCode, Query: name, At: now}

	idx, ok := roster.FindBySubstring(name)
	if !ok {
		evt.Name, evt.Outcome = name, OutcomeAbsent
		s.emit(evt)
		return SubmitResult{Name: name, Outcome: OutcomeAbsent, Session: sess}, nil
	}

	roster.RecordPresence(idx, sess.ClassCode, now, s.cfg.Location)
	if err := s.roster.SaveRoster(ctx, roster); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to persist presence")
		return SubmitResult{}, persistErr("save roster", err)
	}

	matched := roster.Entries[idx].Name
	evt.Name, evt.Outcome = matched, OutcomePresent
	s.emit(evt)
	return SubmitResult{Name: matched, Outcome: OutcomePresent, Session: sess}, nil
}

// ExportReport returns the per-entry status of one class code.
func (s *Service) ExportReport(ctx context.Context, classCode string) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return Report{}, persistErr("load roster", err)
	}
	return roster.ExportReport(strings.TrimSpace(classCode))
}

// SessionReport exports the report of the session's class code.
func (s *Service) SessionReport(ctx context.Context, sessionID string) (Session, Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, Report{}, err
	}
	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return Session{}, Report{}, persistErr("load roster", err)
	}
	rep, err := roster.ExportReport(sess.ClassCode)
	if err != nil {
		return sess, Report{}, err
	}
	return sess, rep, nil
}

// Roster returns a snapshot of the roster table.
func (s *Service) Roster(ctx context.Context) (*Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return nil, persistErr("load roster", err)
	}
	return roster, nil
}

// AddRosterEntries appends attendees and persists the roster once. Either
// every name is added or none is.
func (s *Service) AddRosterEntries(ctx context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return persistErr("load roster", err)
	}
	for _, e := range entries {
		if err := roster.AddEntry(e.Name, e.StudentID); err != nil {
			return err
		}
	}
	if err := s.roster.SaveRoster(ctx, roster); err != nil {
		return persistErr("save roster", err)
	}
	return nil
}
