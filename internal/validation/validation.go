// Package validation rejects oversized or malformed requests before they
// reach a handler.
package validation

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps request bodies at 1MB.
const MaxRequestSize = 1 << 20

// MaxAgentIDLength bounds agent identifiers. Callers choose their own ID
// scheme, so the only constraints are length and printability.
const MaxAgentIDLength = 256

// RequestSizeMiddleware wraps every request body in an http.MaxBytesReader
// so handlers reading past maxSize get an error instead of an unbounded
// payload.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAgentID reports whether id is non-empty after trimming, within
// the length bound, and free of control characters.
func IsValidAgentID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxAgentIDLength {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// AgentParamMiddleware rejects malformed :agentId URL parameters before
// the route handler runs. Routes without the parameter pass through.
func AgentParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("agentId")
		if id != "" && !IsValidAgentID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_agent_id",
				"message": "agent id must be printable and at most 256 characters",
			})
			return
		}
		c.Next()
	}
}
