package attendance

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RolloverIfExpired replaces current with a fresh session once its standing
// TTL has elapsed. The old session is closed, every entry that never got a
// global status is finalized as absent, and a new session with the same
// descriptive fields is opened. An unexpired session is returned unchanged.
func (s *Service) RolloverIfExpired(ctx context.Context, current Session) (Session, error) {
	s.mu.Lock()
	defer s.unlockAndEmit(ctx)

	now := s.clock.Now()
	if !now.After(current.ExpiresAt(s.cfg.StandingTTL)) {
		return current, nil
	}

	if _, err := s.closeLocked(ctx, current.ID); err != nil {
		return current, err
	}

	roster, err := s.roster.LoadRoster(ctx)
	if err != nil {
		return current, persistErr("load roster", err)
	}
	marked := roster.MarkAllAbsentForDefaultSession(s.cfg.Location)
	if marked > 0 {
		if err := s.roster.SaveRoster(ctx, roster); err != nil {
			return current, persistErr("save roster", err)
		}
	}

	next, err := s.createLocked(ctx, current.SessionFields)
	if err != nil {
		return current, err
	}

	s.log.Info().
		Str("expired_session_id", current.ID).
		Str("session_id", next.ID).
		Int("marked_absent", marked).
		Msg("Standing session rolled over")
	s.emit(Event{Kind: EventRollover, SessionID: next.ID, ClassCode: next.ClassCode, Marked: marked, At: now})
	return next, nil
}

// Standing keeps exactly one session open in single-session mode and rolls
// it over when it expires.
type Standing struct {
	svc    *Service
	fields SessionFields

	mu      sync.Mutex
	current Session
}

// NewStanding creates the policy for the given descriptive fields.
func NewStanding(svc *Service, fields SessionFields) *Standing {
	return &Standing{svc: svc, fields: fields.trimmed()}
}

// Start adopts the newest active session for the standing class code, or
// opens one if none exists.
func (p *Standing) Start(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessions, err := p.svc.ListSessions(ctx)
	if err != nil {
		return Session{}, err
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Active && sessions[i].ClassCode == p.fields.ClassCode {
			p.current = sessions[i]
			return p.current, nil
		}
	}
	sess, err := p.svc.CreateSession(ctx, p.fields)
	if err != nil {
		return Session{}, err
	}
	p.current = sess
	return sess, nil
}

// Current returns the standing session, rolling it over first if it has
// expired.
func (p *Standing) Current(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.ID == "" {
		return Session{}, errors.New("standing session not started")
	}
	next, err := p.svc.RolloverIfExpired(ctx, p.current)
	if err != nil {
		return p.current, err
	}
	p.current = next
	return next, nil
}

// Submit rolls an expired standing session over before reconciling, so a
// submission is never accepted past the TTL while waiting for the next Run
// tick. A submission naming the expired session then fails like any closed
// one.
func (p *Standing) Submit(ctx context.Context, sessionID, rawName string) (SubmitResult, error) {
	if _, err := p.Current(ctx); err != nil {
		return SubmitResult{}, err
	}
	return p.svc.Submit(ctx, sessionID, rawName)
}

// Run checks for expiry every interval until ctx is done.
func (p *Standing) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Current(ctx); err != nil {
				p.svc.log.Error().Err(err).Msg("Standing session rollover failed")
			}
		}
	}
}
