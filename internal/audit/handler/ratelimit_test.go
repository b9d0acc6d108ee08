package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civil-whisper/evidence-ledger/internal/audit/handler"
	"github.com/gin-gonic/gin"
)

func limitedRouter(rps, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handler.RateLimiter(rps, burst))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func pingFrom(router *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = addr
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_rejectsBeyondBurst(t *testing.T) {
	router := limitedRouter(1, 2)

	if w := pingFrom(router, "10.0.0.1:1111"); w.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", w.Code)
	}
	pingFrom(router, "10.0.0.1:1111")

	// Burst exhausted; the next immediate request must be rejected.
	w := pingFrom(router, "10.0.0.1:1111")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-burst request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestRateLimiter_clientsLimitedIndependently(t *testing.T) {
	router := limitedRouter(1, 1)

	pingFrom(router, "10.0.0.1:1111")
	if w := pingFrom(router, "10.0.0.1:1111"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client should be limited: got %d", w.Code)
	}
	if w := pingFrom(router, "10.0.0.2:2222"); w.Code != http.StatusOK {
		t.Errorf("second client should have its own bucket: got %d", w.Code)
	}
}
