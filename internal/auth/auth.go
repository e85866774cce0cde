// Package auth resolves the calling tenant from a static API-key table.
//
// Key issuance, rotation and storage live outside this service; the server
// is handed a fixed key→tenant mapping at startup (API_KEYS env). In demo
// mode an X-Tenant-ID header is honored so the API is usable without keys.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustline/internal/logging"
)

// ContextKeyTenantID is the gin context key for the resolved tenant.
const ContextKeyTenantID = "tenantID"

// DefaultTenant is used in demo mode when no tenant is identified.
const DefaultTenant = "default"

// Resolver maps API keys to tenant IDs.
type Resolver struct {
	keys        map[string]string
	adminSecret string
	demoMode    bool
}

// NewResolver creates a resolver from a static key table.
// demoMode allows unauthenticated requests to fall back to DefaultTenant.
func NewResolver(keys map[string]string, adminSecret string, demoMode bool) *Resolver {
	return &Resolver{keys: keys, adminSecret: adminSecret, demoMode: demoMode}
}

// bearerKey extracts the API key from Authorization or X-API-Key headers.
func bearerKey(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	if header != "" {
		return header
	}
	return c.GetHeader("X-API-Key")
}

// Middleware resolves the tenant for every request and stores it in both
// the gin context and the request context (for log correlation).
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := ""
		if key := bearerKey(c); key != "" {
			tenantID = r.keys[key]
		}
		if tenantID == "" && r.demoMode {
			tenantID = c.GetHeader("X-Tenant-ID")
			if tenantID == "" {
				tenantID = DefaultTenant
			}
		}
		if tenantID != "" {
			c.Set(ContextKeyTenantID, tenantID)
			c.Request = c.Request.WithContext(
				logging.WithTenantID(c.Request.Context(), tenantID))
		}
		c.Next()
	}
}

// RequireTenant rejects requests that did not resolve to a tenant.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyTenantID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer <key>' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests without the admin secret.
func (r *Resolver) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader("X-Admin-Secret")
		if r.adminSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(r.adminSecret)) != 1 {
			if !r.demoMode {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "forbidden",
					"message": "Admin secret required.",
				})
				return
			}
		}
		c.Next()
	}
}

// TenantID returns the resolved tenant from the gin context.
func TenantID(c *gin.Context) string {
	if v, exists := c.Get(ContextKeyTenantID); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
