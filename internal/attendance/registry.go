package attendance

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// sessionIDLength is the number of characters kept from a random UUID.
const sessionIDLength = 8

// maxIDAttempts bounds regeneration when a short id collides.
const maxIDAttempts = 16

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateFields checks that every descriptive session field is present.
func ValidateFields(f SessionFields) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		missing := make([]string, 0, len(ve))
		for _, fe := range ve {
			missing = append(missing, fe.Field())
		}
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Registry is the durable table of sessions. It never deletes rows; the only
// mutation after creation is closing.
type Registry struct {
	store  SessionStore
	clock  Clock
	window time.Duration
	newID  func() string
}

// NewRegistry creates a registry whose eligibility window is window.
func NewRegistry(store SessionStore, clock Clock, window time.Duration) *Registry {
	return &Registry{
		store:  store,
		clock:  clock,
		window: window,
		newID:  func() string { return uuid.NewString()[:sessionIDLength] },
	}
}

// Window returns the activity window used for eligibility.
func (r *Registry) Window() time.Duration { return r.window }

// Create validates fields, appends a new active session and persists the
// registry.
func (r *Registry) Create(ctx context.Context, fields SessionFields) (Session, error) {
	fields = fields.trimmed()
	if err := ValidateFields(fields); err != nil {
		return Session{}, err
	}

	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return Session{}, persistErr("load sessions", err)
	}

	id, err := r.uniqueID(sessions)
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:            id,
		SessionFields: fields,
		Active:        true,
		CreatedAt:     r.clock.Now(),
	}
	sessions = append(sessions, sess)
	if err := r.store.SaveSessions(ctx, sessions); err != nil {
		return Session{}, persistErr("save sessions", err)
	}
	return sess, nil
}

func (r *Registry) uniqueID(existing []Session) (string, error) {
	taken := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		taken[s.ID] = struct{}{}
	}
	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		if _, dup := taken[id]; !dup {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrIDExhausted, maxIDAttempts)
}

// Get returns the session with the given id.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return Session{}, persistErr("load sessions", err)
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: session %q", ErrNotFound, id)
}

// Close deactivates the session. It reports whether a row matched; closing
// an already closed session succeeds without writing.
func (r *Registry) Close(ctx context.Context, id string) (bool, error) {
	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return false, persistErr("load sessions", err)
	}
	for i := range sessions {
		if sessions[i].ID != id {
			continue
		}
		if !sessions[i].Active {
			return true, nil
		}
		sessions[i].Active = false
		if err := r.store.SaveSessions(ctx, sessions); err != nil {
			return false, persistErr("save sessions", err)
		}
		return true, nil
	}
	return false, nil
}

// ListEligible returns the sessions accepting submissions at now, in store
// order.
func (r *Registry) ListEligible(ctx context.Context, now time.Time) ([]Session, error) {
	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return nil, persistErr("load sessions", err)
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Eligible(now, r.window) {
			out = append(out, s)
		}
	}
	return out, nil
}

// List returns every session ever created, closed ones included.
func (r *Registry) List(ctx context.Context) ([]Session, error) {
	sessions, err := r.store.LoadSessions(ctx)
	if err != nil {
		return nil, persistErr("load sessions", err)
	}
	return sessions, nil
}
