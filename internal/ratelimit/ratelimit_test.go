package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/trustline/internal/auth"
)

func newLimiter(t *testing.T, perMinute, burst int) *Limiter {
	t.Helper()
	l := New(Config{
		RequestsPerMinute: perMinute,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(l.Stop)
	return l
}

func TestAllowSpendsBurstThenRefuses(t *testing.T) {
	l := newLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		if !l.Allow("tenant:acme") {
			t.Fatalf("request %d should fit in the burst", i+1)
		}
	}
	if l.Allow("tenant:acme") {
		t.Fatal("burst spent, next request should be refused")
	}
}

func TestAllowRefillsOverTime(t *testing.T) {
	// 600/min refills one token every 100ms.
	l := newLimiter(t, 600, 1)

	if !l.Allow("tenant:acme") {
		t.Fatal("first request should pass")
	}
	if l.Allow("tenant:acme") {
		t.Fatal("bucket is empty, second request should be refused")
	}

	time.Sleep(120 * time.Millisecond)

	if !l.Allow("tenant:acme") {
		t.Fatal("a token should have refilled by now")
	}
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	l := newLimiter(t, 60, 2)

	l.Allow("tenant:acme")
	l.Allow("tenant:acme")
	if l.Allow("tenant:acme") {
		t.Fatal("tenant:acme should be out of tokens")
	}
	if !l.Allow("tenant:globex") {
		t.Fatal("tenant:globex has its own bucket")
	}
}

func TestMiddlewareKeysByTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := newLimiter(t, 60, 1)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if tenant := c.GetHeader("X-Test-Tenant"); tenant != "" {
			c.Set(auth.ContextKeyTenantID, tenant)
		}
	})
	router.Use(l.Middleware())
	router.GET("/test", func(c *gin.Context) {
		c.String(200, "ok")
	})

	do := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/test", nil)
		if tenant != "" {
			req.Header.Set("X-Test-Tenant", tenant)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := do("tenant-a"); w.Code != 200 {
		t.Errorf("first tenant-a request = %d, want 200", w.Code)
	}

	w := do("tenant-a")
	if w.Code != 429 {
		t.Errorf("second tenant-a request = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}

	// A different tenant has its own bucket.
	if w := do("tenant-b"); w.Code != 200 {
		t.Errorf("first tenant-b request = %d, want 200", w.Code)
	}
}
