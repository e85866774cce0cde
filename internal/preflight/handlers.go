package preflight

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustline/internal/auth"
	"github.com/mbd888/trustline/internal/idgen"
	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/logging"
	"github.com/mbd888/trustline/internal/metrics"
	"github.com/mbd888/trustline/internal/policy"
	"github.com/mbd888/trustline/internal/traces"
	"github.com/mbd888/trustline/internal/trust"
)

// Handler provides HTTP endpoints for preflight decisions.
type Handler struct {
	scores   *trust.Service
	policies policy.Store
	store    Store
}

// NewHandler creates a new preflight handler. The store may be nil when
// decision auditing is disabled.
func NewHandler(scores *trust.Service, policies policy.Store, store Store) *Handler {
	return &Handler{
		scores:   scores,
		policies: policies,
		store:    store,
	}
}

// RegisterRoutes sets up the preflight endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/preflight", h.Preflight)
	r.GET("/agents/:agentId/decisions", h.ListDecisions)
}

// PreflightRequest asks whether an agent should be allowed to act.
type PreflightRequest struct {
	AgentID string        `json:"agentId" binding:"required"`
	Action  ActionContext `json:"action"`
}

// Preflight handles POST /v1/preflight
func (h *Handler) Preflight(c *gin.Context) {
	tenantID := auth.TenantID(c)

	var req PreflightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain agentId",
		})
		return
	}
	agentID := ledger.NormalizeAgentID(req.AgentID)

	ctx, span := traces.StartSpan(c.Request.Context(), "preflight.decide",
		traces.TenantID(tenantID),
		traces.AgentID(agentID),
	)
	defer span.End()

	res, err := h.scores.Score(ctx, tenantID, agentID, trust.ScoreOptions{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "preflight_failed",
			"message": "Failed to compute trust score",
		})
		return
	}
	pol, err := policy.GetOrDefault(ctx, h.policies, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "preflight_failed",
			"message": "Failed to load policy",
		})
		return
	}

	d := Decide(tenantID, agentID, req.Action, res, pol, time.Now())
	d.ID = idgen.WithPrefix("dec_")

	metrics.PreflightDecisionsTotal.WithLabelValues(string(d.Outcome)).Inc()
	span.SetAttributes(traces.Outcome(string(d.Outcome)), traces.Score(res.Score))

	// Audit recording is best-effort: a storage hiccup must not turn an
	// allow into an error.
	if h.store != nil {
		record := *d
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.store.Record(ctx, &record); err != nil {
				logging.L(ctx).Warn("failed to record preflight decision", "agent", record.AgentID, "error", err)
			}
		}()
	}

	logging.L(ctx).Info("preflight decision",
		"agent", agentID,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"score", res.Score,
		"adjustedScore", d.Policy.AdjustedScore,
	)

	c.JSON(http.StatusOK, d)
}

// ListDecisions handles GET /v1/agents/:agentId/decisions?limit=50
func (h *Handler) ListDecisions(c *gin.Context) {
	tenantID := auth.TenantID(c)
	agentID := ledger.NormalizeAgentID(c.Param("agentId"))

	if h.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":   "not_available",
			"message": "Decision history is not available",
		})
		return
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
			if limit > 500 {
				limit = 500
			}
		}
	}

	decisions, err := h.store.ListByAgent(c.Request.Context(), tenantID, agentID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list decisions",
		})
		return
	}
	if decisions == nil {
		decisions = []*Decision{}
	}

	c.JSON(http.StatusOK, gin.H{
		"agentId":   agentID,
		"decisions": decisions,
		"count":     len(decisions),
	})
}
