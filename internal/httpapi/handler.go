package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"classroll/internal/attendance"
)

// Handler serves the attendance endpoints.
type Handler struct {
	svc      *attendance.Service
	standing *attendance.Standing
	clock    attendance.Clock
	log      zerolog.Logger
}

// NewHandler creates a handler. standing is nil in multi-session mode.
func NewHandler(svc *attendance.Service, standing *attendance.Standing, clock attendance.Clock, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, standing: standing, clock: clock, log: log.With().Str("component", "httpapi").Logger()}
}

// CreateSession handles POST /v1/sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	var req attendance.SessionFields
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

// ListSessions handles GET /v1/sessions. Only eligible sessions are listed
// unless ?all=true.
func (h *Handler) ListSessions(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all"))

	var (
		sessions []attendance.Session
		err      error
	)
	if all {
		sessions, err = h.svc.ListSessions(c.Request.Context())
	} else {
		sessions, err = h.svc.ListEligibleSessions(c.Request.Context(), h.clock.Now())
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// CurrentSession handles GET /v1/sessions/current in single-session mode,
// rolling the standing session over first if it has expired.
func (h *Handler) CurrentSession(c *gin.Context) {
	if h.standing == nil {
		fail(c, h.log, fmt.Errorf("%w: no standing session in multi-session mode", attendance.ErrNotFound))
		return
	}
	sess, err := h.standing.Current(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// GetSession handles GET /v1/sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":  sess,
		"eligible": sess.Eligible(h.clock.Now(), h.svc.Registry().Window()),
	})
}

// CloseSession handles POST /v1/sessions/:id/close.
func (h *Handler) CloseSession(c *gin.Context) {
	id := c.Param("id")
	found, err := h.svc.CloseSession(c.Request.Context(), id)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !found {
		fail(c, h.log, fmt.Errorf("%w: session %q", attendance.ErrNotFound, id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "closed": true})
}

type submitRequest struct {
	Name string `json:"name" binding:"required"`
}

// Submit handles POST /v1/sessions/:id/submissions. In single-session mode
// an expired standing session is rolled over first.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var (
		res attendance.SubmitResult
		err error
	)
	if h.standing != nil {
		res, err = h.standing.Submit(c.Request.Context(), c.Param("id"), req.Name)
	} else {
		res, err = h.svc.Submit(c.Request.Context(), c.Param("id"), req.Name)
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":       res.Name,
		"outcome":    res.Outcome,
		"status":     res.Outcome.Symbol(),
		"session_id": res.Session.ID,
		"class_code": res.Session.ClassCode,
		"message":    submitMessage(res),
	})
}

func submitMessage(res attendance.SubmitResult) string {
	if res.Outcome == attendance.OutcomePresent {
		return fmt.Sprintf("%s marked as Present (%s) for %s", res.Name, attendance.StatusPresent, res.Session.ClassName)
	}
	return fmt.Sprintf("%s not found. Marked as Absent (%s)", res.Name, attendance.StatusAbsent)
}

// ClassReport handles GET /v1/reports/:class_code.
func (h *Handler) ClassReport(c *gin.Context) {
	rep, err := h.svc.ExportReport(c.Request.Context(), c.Param("class_code"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	writeReport(c, rep, nil)
}

// SessionReport handles GET /v1/sessions/:id/report. ?format=csv returns the
// report as a download.
func (h *Handler) SessionReport(c *gin.Context) {
	sess, rep, err := h.svc.SessionReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if c.Query("format") == "csv" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename(sess.ID)))
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := rep.WriteCSV(c.Writer); err != nil {
			h.log.Error().Err(err).Str("session_id", sess.ID).Msg("writing csv report")
		}
		return
	}
	writeReport(c, rep, &sess)
}

func writeReport(c *gin.Context, rep attendance.Report, sess *attendance.Session) {
	present, notRecorded := rep.Summary()
	body := gin.H{
		"class_code":   rep.ClassCode,
		"rows":         rep.Rows,
		"present":      present,
		"not_recorded": notRecorded,
	}
	if sess != nil {
		body["session"] = sess
	}
	c.JSON(http.StatusOK, body)
}

type rosterRequest struct {
	Name      string `json:"name" binding:"required"`
	StudentID string `json:"student_id"`
}

// AddRosterEntry handles POST /v1/roster.
func (h *Handler) AddRosterEntry(c *gin.Context) {
	var req rosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entry := attendance.Entry{Name: req.Name, StudentID: req.StudentID}
	if err := h.svc.AddRosterEntries(c.Request.Context(), entry); err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name, "student_id": req.StudentID})
}

// Roster handles GET /v1/roster.
func (h *Handler) Roster(c *gin.Context) {
	r, err := h.svc.Roster(c.Request.Context())
	if err != nil {
		fail(c, h.log, err)
		return
	}
	entries := r.Entries
	if entries == nil {
		entries = []attendance.Entry{}
	}
	codes := r.ClassCodes
	if codes == nil {
		codes = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"class_codes": codes, "entries": entries})
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Health handles GET /healthz.
func Health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
