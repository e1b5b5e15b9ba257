package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RosterStore persists the whole roster table. SaveRoster must be atomic:
// either the full table is written or nothing is.
type RosterStore interface {
	LoadRoster(ctx context.Context) (*Roster, error)
	SaveRoster(ctx context.Context, r *Roster) error
}

// SessionStore persists the session registry with the same all-or-nothing
// contract as RosterStore.
type SessionStore interface {
	LoadSessions(ctx context.Context) ([]Session, error)
	SaveSessions(ctx context.Context, sessions []Session) error
}

// Clock supplies the current time in the deployment's fixed zone.
type Clock interface {
	Now() time.Time
}

// ZoneClock reads the wall clock and converts it to Location.
type ZoneClock struct {
	Location *time.Location
}

// NewZoneClock loads the named IANA zone.
func NewZoneClock(name string) (ZoneClock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ZoneClock{}, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return ZoneClock{Location: loc}, nil
}

// Now returns the current time in the clock's zone.
func (c ZoneClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// persistErr tags store failures with ErrPersistence unless the store
// already did.
func persistErr(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
