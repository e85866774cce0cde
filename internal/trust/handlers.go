package trust

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustline/internal/auth"
	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/pagination"
	"github.com/mbd888/trustline/internal/traces"
)

// Handler provides HTTP endpoints for event ingestion and scoring.
type Handler struct {
	svc           *Service
	snapshotStore SnapshotStore
}

// NewHandler creates a new trust handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// NewHandlerFull creates a handler with score history backed by snapshots.
func NewHandlerFull(svc *Service, store SnapshotStore) *Handler {
	return &Handler{svc: svc, snapshotStore: store}
}

// RegisterRoutes sets up ingestion and scoring endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.ReportEvent)
	r.GET("/agents", h.ListAgents)
	r.GET("/agents/:agentId/score", h.GetScore)
	r.GET("/agents/:agentId/events", h.ListEvents)
	r.GET("/agents/:agentId/score/history", h.GetScoreHistory)
}

// ReportEvent handles POST /v1/events
func (h *Handler) ReportEvent(c *gin.Context) {
	tenantID := auth.TenantID(c)

	var in ledger.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain agentId and kind",
		})
		return
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "trust.ingest",
		traces.TenantID(tenantID),
		traces.AgentID(ledger.NormalizeAgentID(in.AgentID)),
		traces.EventType(ledger.NormalizeKey(in.EventType)),
	)
	defer span.End()

	result, err := h.svc.Ingest(ctx, tenantID, &in)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": strings.TrimPrefix(err.Error(), "invalid input: "),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "ingest_failed",
			"message": "Failed to record event",
		})
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// GetScore handles GET /v1/agents/:agentId/score?trace=true&traceLimit=10
func (h *Handler) GetScore(c *gin.Context) {
	tenantID := auth.TenantID(c)
	agentID := ledger.NormalizeAgentID(c.Param("agentId"))

	opts := ScoreOptions{}
	if c.Query("trace") == "true" {
		opts.IncludeTrace = true
		if l := c.Query("traceLimit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				opts.TraceLimit = parsed
			}
		}
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "trust.score",
		traces.TenantID(tenantID),
		traces.AgentID(agentID),
	)
	defer span.End()

	result, err := h.svc.Score(ctx, tenantID, agentID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "score_failed",
			"message": "Failed to compute trust score",
		})
		return
	}
	span.SetAttributes(traces.Score(result.Score))

	c.JSON(http.StatusOK, result)
}

// ListEvents handles GET /v1/agents/:agentId/events?limit=50&cursor=
func (h *Handler) ListEvents(c *gin.Context) {
	tenantID := auth.TenantID(c)
	agentID := ledger.NormalizeAgentID(c.Param("agentId"))

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 500 {
				limit = 500
			}
		}
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	events, err := h.svc.Events().ListByAgentPage(c.Request.Context(), tenantID, agentID, cursor, limit+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list events",
		})
		return
	}

	events, nextCursor, hasMore := pagination.Page(events, limit, func(ev *ledger.Event) (time.Time, string) {
		return ev.CreatedAt, ev.ID
	})
	if events == nil {
		events = []*ledger.Event{}
	}

	resp := gin.H{
		"agentId": agentID,
		"events":  events,
		"count":   len(events),
		"hasMore": hasMore,
	}
	if nextCursor != "" {
		resp["nextCursor"] = nextCursor
	}
	c.JSON(http.StatusOK, resp)
}

// GetScoreHistory handles GET /v1/agents/:agentId/score/history?from=&to=&limit=
func (h *Handler) GetScoreHistory(c *gin.Context) {
	tenantID := auth.TenantID(c)
	agentID := ledger.NormalizeAgentID(c.Param("agentId"))

	if h.snapshotStore == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_available",
			"message": "Historical score data is not available",
		})
		return
	}

	q := HistoryQuery{
		TenantID: tenantID,
		AgentID:  agentID,
		Limit:    100,
	}

	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			q.From = t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			q.To = t
		}
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			q.Limit = parsed
			if q.Limit > 1000 {
				q.Limit = 1000
			}
		}
	}

	snapshots, err := h.snapshotStore.Query(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "query_failed",
			"message": "Failed to query score history",
		})
		return
	}
	if snapshots == nil {
		snapshots = []*Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId":   agentID,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// ListAgents handles GET /v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	tenantID := auth.TenantID(c)

	agents, err := h.svc.Events().ListAgentIDs(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list agents",
		})
		return
	}
	if agents == nil {
		agents = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"count":  len(agents),
	})
}
