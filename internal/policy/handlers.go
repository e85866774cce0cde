package policy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustline/internal/auth"
	"github.com/mbd888/trustline/internal/logging"
)

// Handler provides HTTP endpoints for tenant policy management.
type Handler struct {
	store Store
}

// NewHandler creates a new policy handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up the policy endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/policy", h.GetPolicy)
	r.PATCH("/policy", h.PatchPolicy)
	r.POST("/policy/preset", h.ApplyPreset)
	r.DELETE("/policy", h.ResetPolicy)
}

// GetPolicy handles GET /v1/policy
func (h *Handler) GetPolicy(c *gin.Context) {
	tenantID := auth.TenantID(c)

	p, err := GetOrDefault(c.Request.Context(), h.store, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to load policy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"policy": p})
}

// PatchPolicy handles PATCH /v1/policy. Set fields replace, nested maps
// merge key-by-key; omitted fields keep their current values.
func (h *Handler) PatchPolicy(c *gin.Context) {
	tenantID := auth.TenantID(c)

	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	current, err := GetOrDefault(c.Request.Context(), h.store, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to load policy",
		})
		return
	}

	next, err := patch.Apply(current, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_policy",
			"message": err.Error(),
		})
		return
	}

	if err := h.store.Set(c.Request.Context(), next); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to save policy",
		})
		return
	}

	logging.L(c.Request.Context()).Info("policy updated", "tenant", tenantID)
	c.JSON(http.StatusOK, gin.H{"policy": next})
}

// ApplyPresetRequest selects a named preset.
type ApplyPresetRequest struct {
	Preset string `json:"preset" binding:"required"`
}

// ApplyPreset handles POST /v1/policy/preset. Presets replace the policy
// wholesale; prior patches do not survive.
func (h *Handler) ApplyPreset(c *gin.Context) {
	tenantID := auth.TenantID(c)

	var req ApplyPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'preset'",
		})
		return
	}

	p, err := FromPreset(tenantID, req.Preset)
	if err != nil {
		if errors.Is(err, ErrUnknownPreset) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_preset",
				"message": "Preset must be one of open, balanced, strict",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to apply preset",
		})
		return
	}
	p.UpdatedAt = time.Now()

	if err := h.store.Set(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to save policy",
		})
		return
	}

	logging.L(c.Request.Context()).Info("policy preset applied", "tenant", tenantID, "preset", req.Preset)
	c.JSON(http.StatusOK, gin.H{"policy": p})
}

// ResetPolicy handles DELETE /v1/policy, reverting the tenant to defaults.
func (h *Handler) ResetPolicy(c *gin.Context) {
	tenantID := auth.TenantID(c)

	if err := h.store.Delete(c.Request.Context(), tenantID); err != nil && !errors.Is(err, ErrPolicyNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "policy_failed",
			"message": "Failed to reset policy",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "reset",
		"message": "Policy reset to defaults",
		"policy":  Default(tenantID),
	})
}
