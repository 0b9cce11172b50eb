package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"meeting-scheduler/internal/audit"
	"meeting-scheduler/internal/auth"
	"meeting-scheduler/internal/calls"
	"meeting-scheduler/internal/orchestrator"
	"meeting-scheduler/internal/reporting"
	"meeting-scheduler/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Scheduler is the sweep surface the trigger endpoints drive.
type Scheduler interface {
	Sweep(ctx context.Context) (orchestrator.Report, error)
	RunOne(ctx context.Context, callID string) (orchestrator.Result, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     *calls.Service
	Scheduler Scheduler
	Reports   *reporting.Service
	Audit     *audit.Service

	// Clock defaults to time.Now; tests pin it.
	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and hidden behind a 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrAlreadySubmitted),
		errors.Is(err, calls.ErrCallClosed),
		errors.Is(err, calls.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Calls ---

type createCallResponse struct {
	Call         calls.Call          `json:"call"`
	Participants []calls.Participant `json:"participants"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req calls.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, ps, err := h.Calls.Create(c.Request.Context(), calls.Organizer{
		UserID: id.UserID,
		Name:   id.Name,
		Email:  id.Email,
	}, req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.RecordActor(c.Request.Context(), call.ID, id.UserID, id.Role, audit.EventCallCreated, call.Title)
	c.JSON(http.StatusCreated, createCallResponse{Call: call, Participants: ps})
}

// ListCalls returns the calls the caller organizes or is invited to.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	list, err := h.Calls.ListForUser(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

// --- Availability links (public, keyed by the deep-link token) ---

func (h Handlers) AvailabilityDetails(c *gin.Context) {
	d, err := h.Calls.Details(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type submitRequest struct {
	Windows []calls.SubmissionInput `json:"windows"`
}

func (h Handlers) SubmitAvailability(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.Submit(c.Request.Context(), c.Param("token"), req.Windows); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (h Handlers) DeclineCall(c *gin.Context) {
	if err := h.Calls.Decline(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

func (h Handlers) ReopenAvailability(c *gin.Context) {
	if err := h.Calls.Reopen(c.Request.Context(), c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "waiting"})
}

// --- Scheduler trigger ---

func (h Handlers) RunSweep(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not configured"})
		return
	}
	rep, err := h.Scheduler.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h Handlers) RunCall(c *gin.Context) {
	if h.Scheduler == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not configured"})
		return
	}
	res, err := h.Scheduler.RunOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Reporting ---

const defaultReportWindow = 30 * 24 * time.Hour

// CallsSummary reports on the caller's calls. from/to are RFC 3339 and
// default to the last 30 days.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	to := h.now().UTC()
	from := to.Add(-defaultReportWindow)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}
	sum, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OrganizerID: userID,
		Range:       reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
