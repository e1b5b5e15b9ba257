package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroll/internal/attendance"
	"classroll/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	router *gin.Engine
	svc    *attendance.Service
	store  *attendance.MemoryStore
	clock  *testClock
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, single bool) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("SAST", 2*60*60))}
	store := attendance.NewMemoryStore("Alice Smith", "Bob Johnson")
	svc := attendance.NewService(store, store, clock, attendance.Config{
		Location:        "STADIO Centurion, Room BL7",
		ActivityWindow:  10 * time.Hour,
		StandingTTL:     10 * time.Minute,
		RequireEligible: true,
	}, zerolog.Nop())

	reg := prometheus.NewRegistry()
	svc.AddObserver(metrics.New(reg))

	var standing *attendance.Standing
	if single {
		standing = attendance.NewStanding(svc, sessionFields("GENERAL"))
		_, err := standing.Start(context.Background())
		require.NoError(t, err)
	}

	router := NewRouter(RouterConfig{
		Handler:         NewHandler(svc, standing, clock, zerolog.Nop()),
		Log:             zerolog.Nop(),
		RateLimitPerMin: 0,
		Checks: map[string]HealthCheck{
			"store": func(context.Context) bool { return true },
		},
		Gatherer: reg,
	})
	return &fixture{router: router, svc: svc, store: store, clock: clock, reg: reg}
}

func sessionFields(code string) attendance.SessionFields {
	return attendance.SessionFields{
		ClassName: "Intro to Computing",
		ClassCode: code,
		Date:      "2025-03-01",
		StartTime: "09:00",
		EndTime:   "11:00",
		Room:      "BL7",
		Lecturer:  "Dr. Nkosi",
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *fixture) createSession(t *testing.T, code string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/sessions", sessionFields(code))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := decode(t, w)["session"].(map[string]any)
	return sess["session_id"].(string)
}

func TestAPI_Scenario(t *testing.T) {
	f := newFixture(t, false)
	id := f.createSession(t, "CS101")

	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Alice Smith", body["name"])
	assert.Equal(t, "present", body["outcome"])
	assert.Equal(t, "Alice Smith marked as Present (✔) for Intro to Computing", body["message"])

	w = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "zack"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "absent", body["outcome"])
	assert.Equal(t, "zack not found. Marked as Absent (❌)", body["message"])

	w = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["sessions"])

	w = f.do(t, http.MethodGet, "/v1/sessions?all=true", nil)
	assert.Len(t, decode(t, w)["sessions"], 1)

	w = f.do(t, http.MethodGet, "/v1/reports/CS101", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 1, body["present"])
	assert.EqualValues(t, 1, body["not_recorded"])
	rows := body["rows"].([]any)
	assert.Equal(t, "Alice Smith", rows[0].(map[string]any)["name"])
	assert.Equal(t, "✔", rows[0].(map[string]any)["status"])
	assert.Equal(t, "", rows[1].(map[string]any)["status"])
}

func TestAPI_SubmitErrors(t *testing.T) {
	f := newFixture(t, false)
	id := f.createSession(t, "CS101")

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"unknown session", "/v1/sessions/missing1/submissions", gin.H{"name": "alice"}, http.StatusNotFound, CodeNotFound},
		{"missing name", "/v1/sessions/" + id + "/submissions", gin.H{}, http.StatusBadRequest, CodeValidation},
		{"blank name", "/v1/sessions/" + id + "/submissions", gin.H{"name": "   "}, http.StatusBadRequest, CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["code"])
		})
	}

	f.clock.now = f.clock.now.Add(11 * time.Hour)
	w := f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "alice"})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, CodeExpired, decode(t, w)["code"])
}

func TestAPI_CreateSessionValidation(t *testing.T) {
	f := newFixture(t, false)
	fields := sessionFields("CS101")
	fields.Room = " "

	w := f.do(t, http.MethodPost, "/v1/sessions", fields)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "room")
}

func TestAPI_GetAndCloseUnknown(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/sessions/nope1234", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/v1/sessions/nope1234/close", nil).Code)

	id := f.createSession(t, "CS101")
	w := f.do(t, http.MethodGet, "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["eligible"])
}

func TestAPI_SessionReportCSV(t *testing.T) {
	f := newFixture(t, false)
	id := f.createSession(t, "CS101")

	w := f.do(t, http.MethodGet, "/v1/sessions/"+id+"/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no attendance recorded yet")

	f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "bob"})

	w = f.do(t, http.MethodGet, "/v1/sessions/"+id+"/report?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf("attachment; filename=%q", "attendance_CS101_"+id+".csv"), w.Header().Get("Content-Disposition"))
	assert.Equal(t, "name,Status,Timestamp\nAlice Smith,,\nBob Johnson,✔,\"01 March 2025, 09:00 AM\"\n", w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/sessions/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["session"].(map[string]any)["session_id"])
}

func TestAPI_Roster(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(t, http.MethodPost, "/v1/roster", gin.H{"name": "Carol Dlamini", "student_id": "S3"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/v1/roster", gin.H{"name": "Carol Dlamini"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate names are rejected")

	w = f.do(t, http.MethodGet, "/v1/roster", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["entries"], 3)
	assert.Equal(t, []any{}, body["class_codes"])
}

func TestAPI_CurrentSession(t *testing.T) {
	multi := newFixture(t, false)
	assert.Equal(t, http.StatusNotFound, multi.do(t, http.MethodGet, "/v1/sessions/current", nil).Code)

	f := newFixture(t, true)
	w := f.do(t, http.MethodGet, "/v1/sessions/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)["session"].(map[string]any)["session_id"]

	f.clock.now = f.clock.now.Add(11 * time.Minute)
	w = f.do(t, http.MethodGet, "/v1/sessions/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode(t, w)["session"].(map[string]any)["session_id"]
	assert.NotEqual(t, first, second)

	r, err := f.svc.Roster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusAbsent, r.Entries[0].Status, "rollover finalizes unmarked entries")
}

func TestAPI_SubmitAfterStandingTTL(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(t, http.MethodGet, "/v1/sessions/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["session"].(map[string]any)["session_id"].(string)

	f.clock.now = f.clock.now.Add(11 * time.Minute)
	w = f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "alice"})
	assert.Equal(t, http.StatusGone, w.Code, w.Body.String())
	assert.Equal(t, CodeExpired, decode(t, w)["code"])

	sessions, err := f.svc.ListEligibleSessions(context.Background(), f.clock.now)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotEqual(t, id, sessions[0].ID, "submission triggered the rollover")
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	f := newFixture(t, false)
	id := f.createSession(t, "CS101")
	f.do(t, http.MethodPost, "/v1/sessions/"+id+"/submissions", gin.H{"name": "alice"})

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["store"])

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `classroll_submissions_total{outcome="present"} 1`)
}

func TestHealth_Degraded(t *testing.T) {
	r := gin.New()
	r.GET("/healthz", Health(map[string]HealthCheck{"redis": func(context.Context) bool { return false }}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","redis":false}`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
	}{
		{fmt.Errorf("x: %w", attendance.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("x: %w", attendance.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", attendance.ErrSessionExpired), http.StatusGone},
		{fmt.Errorf("x: %w: %w", attendance.ErrPersistence, errors.New("disk")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.wantCode, got, tt.err.Error())
	}
}
