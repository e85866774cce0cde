package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware(origins))
	r.GET("/score", func(c *gin.Context) {
		c.JSON(200, gin.H{"score": 50})
	})
	return r
}

func get(r *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/score", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddlewareSetsEveryHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HeadersMiddleware())
	r.GET("/score", func(c *gin.Context) {
		c.JSON(200, gin.H{"score": 50})
	})

	w := get(r, "GET", "")

	for name, want := range responseHeaders {
		if got := w.Header().Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	r := corsRouter([]string{"https://app.example.com"})

	w := get(r, "GET", "https://app.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q, want the listed origin", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("explicit origin lists should allow credentials")
	}
}

func TestCORSIgnoresUnlistedOrigin(t *testing.T) {
	r := corsRouter([]string{"https://app.example.com"})

	w := get(r, "GET", "https://evil.example.net")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want unset for an unlisted origin", got)
	}
	if w.Code != 200 {
		t.Errorf("request itself should still succeed, got %d", w.Code)
	}
}

func TestCORSWildcardAdmitsAnyOriginWithoutCredentials(t *testing.T) {
	r := corsRouter([]string{"*"})

	w := get(r, "GET", "https://anything.example.org")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://anything.example.org" {
		t.Errorf("Allow-Origin = %q, want the request origin", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard mode must not allow credentials")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	r := corsRouter([]string{"*"})

	w := get(r, "OPTIONS", "https://app.example.com")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight response should list allowed methods")
	}
}
