package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, testZone)}
}

func cs101() SessionFields { return fieldsFor("CS101") }

func fieldsFor(code string) SessionFields {
	return SessionFields{
		ClassName: "Intro to Computing",
		ClassCode: code,
		Date:      "2025-03-01",
		StartTime: "09:00",
		EndTime:   "11:00",
		Room:      "BL7",
		Lecturer:  "Dr. Nkosi",
	}
}

// failingStore errors on the configured operations.
type failingStore struct {
	*MemoryStore
	failLoad bool
	failSave bool
}

var errDisk = errors.New("disk full")

func (f *failingStore) LoadSessions(ctx context.Context) ([]Session, error) {
	if f.failLoad {
		return nil, errDisk
	}
	return f.MemoryStore.LoadSessions(ctx)
}

func (f *failingStore) SaveSessions(ctx context.Context, s []Session) error {
	if f.failSave {
		return errDisk
	}
	return f.MemoryStore.SaveSessions(ctx, s)
}

func (f *failingStore) LoadRoster(ctx context.Context) (*Roster, error) {
	if f.failLoad {
		return nil, errDisk
	}
	return f.MemoryStore.LoadRoster(ctx)
}

func (f *failingStore) SaveRoster(ctx context.Context, r *Roster) error {
	if f.failSave {
		return errDisk
	}
	return f.MemoryStore.SaveRoster(ctx, r)
}

func TestRegistry_Create(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	reg := NewRegistry(store, clock, 10*time.Hour)

	sess, err := reg.Create(context.Background(), cs101())
	require.NoError(t, err)

	assert.Len(t, sess.ID, sessionIDLength)
	assert.True(t, sess.Active)
	assert.Equal(t, clock.now, sess.CreatedAt)
	assert.Equal(t, "CS101", sess.ClassCode)

	stored, err := store.LoadSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Session{sess}, stored)
}

func TestRegistry_Create_TrimsAndValidates(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), newFakeClock(), time.Hour)
	fields := cs101()
	fields.ClassCode = "  CS101 "

	sess, err := reg.Create(context.Background(), fields)
	require.NoError(t, err)
	assert.Equal(t, "CS101", sess.ClassCode)

	fields.Room = "   "
	fields.Lecturer = ""
	_, err = reg.Create(context.Background(), fields)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "room")
	assert.Contains(t, err.Error(), "lecturer")
}

func TestRegistry_Create_RegeneratesCollidingID(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), newFakeClock(), time.Hour)
	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	reg.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := reg.Create(context.Background(), cs101())
	require.NoError(t, err)
	second, err := reg.Create(context.Background(), cs101())
	require.NoError(t, err)

	assert.Equal(t, "aaaaaaaa", first.ID)
	assert.Equal(t, "bbbbbbbb", second.ID)
}

func TestRegistry_Create_IDExhausted(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, newFakeClock(), time.Hour)
	reg.newID = func() string { return "aaaaaaaa" }

	_, err := reg.Create(context.Background(), cs101())
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), cs101())
	require.ErrorIs(t, err, ErrIDExhausted)

	sessions, err := store.LoadSessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "nothing saved on failure")
}

func TestRegistry_Create_PersistenceError(t *testing.T) {
	reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), failSave: true}, newFakeClock(), time.Hour)

	_, err := reg.Create(context.Background(), cs101())

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDisk)
}

func TestRegistry_GetAndClose(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), newFakeClock(), time.Hour)
	sess, err := reg.Create(ctx, cs101())
	require.NoError(t, err)

	got, err := reg.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	_, err = reg.Get(ctx, "missing1")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := reg.Close(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = reg.Close(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, found, "closing twice is idempotent")

	got, err = reg.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	found, err = reg.Close(ctx, "missing1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistry_ListEligible(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	reg := NewRegistry(NewMemoryStore(), clock, 10*time.Hour)

	old, err := reg.Create(ctx, fieldsFor("OLD1"))
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	closed, err := reg.Create(ctx, fieldsFor("CLS1"))
	require.NoError(t, err)
	open, err := reg.Create(ctx, fieldsFor("OPN1"))
	require.NoError(t, err)
	_, err = reg.Close(ctx, closed.ID)
	require.NoError(t, err)

	eligible, err := reg.ListEligible(ctx, clock.now)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID, open.ID}, sessionIDs(eligible))

	// Exactly at the window boundary the session is still eligible.
	eligible, err = reg.ListEligible(ctx, old.CreatedAt.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID, open.ID}, sessionIDs(eligible))

	eligible, err = reg.ListEligible(ctx, old.CreatedAt.Add(10*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{open.ID}, sessionIDs(eligible))

	all, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRegistry_LoadFailure(t *testing.T) {
	reg := NewRegistry(&failingStore{MemoryStore: NewMemoryStore(), failLoad: true}, newFakeClock(), time.Hour)

	_, err := reg.ListEligible(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrPersistence)

	_, err = reg.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrPersistence)
}

func sessionIDs(sessions []Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
