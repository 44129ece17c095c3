package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func pushRequest(ns string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/api/v1/backend/"+ns+"/job", nil)
	req.SetPathValue("ns", ns)
	return req
}

func TestRateLimitMiddleware_AllowsRequestUnderLimit(t *testing.T) {
	handler := NewRateLimiter(100, 200).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, pushRequest("orders"))

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(1, 1, WithTTL(5*time.Minute)).Middleware()(okHandler())

	// First request should succeed (uses the burst)
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, pushRequest("orders"))
	if rr1.Code != http.StatusOK {
		t.Errorf("first request: got status %d, want %d", rr1.Code, http.StatusOK)
	}

	// Second request should be rate limited (burst exhausted)
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, pushRequest("orders"))
	if rr2.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr2.Code, http.StatusTooManyRequests)
	}
	if got := rr2.Header().Get("Retry-After"); got != "1" {
		t.Errorf("got Retry-After %q, want %q", got, "1")
	}
}

func TestRateLimitMiddleware_IndependentLimitsPerNamespace(t *testing.T) {
	handler := NewRateLimiter(1, 1).Middleware()(okHandler())

	// Exhaust the orders limit
	handler.ServeHTTP(httptest.NewRecorder(), pushRequest("orders"))
	rrA := httptest.NewRecorder()
	handler.ServeHTTP(rrA, pushRequest("orders"))
	if rrA.Code != http.StatusTooManyRequests {
		t.Errorf("orders second request: got status %d, want %d", rrA.Code, http.StatusTooManyRequests)
	}

	// emails should still be able to enqueue
	rrB := httptest.NewRecorder()
	handler.ServeHTTP(rrB, pushRequest("emails"))
	if rrB.Code != http.StatusOK {
		t.Errorf("emails request: got status %d, want %d", rrB.Code, http.StatusOK)
	}
}

func TestRateLimitMiddleware_ExpiredLimiterIsReplaced(t *testing.T) {
	handler := NewRateLimiter(1, 1, WithTTL(-time.Second)).Middleware()(okHandler())

	for i := range 3 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, pushRequest("orders"))
		if rr.Code != http.StatusOK {
			t.Errorf("request %d: got status %d, want %d", i, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_UnlimitedWhenRateZero(t *testing.T) {
	handlerCallCount := 0
	handler := NewRateLimiter(0, 0).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 10 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, pushRequest("orders"))
		if rr.Code != http.StatusOK {
			t.Errorf("request %d: got status %d, want %d", i, rr.Code, http.StatusOK)
		}
	}

	if handlerCallCount != 10 {
		t.Errorf("expected 10 handler calls, got %d", handlerCallCount)
	}
}

func TestRateLimitMiddleware_UnknownNamespacesAreNotTracked(t *testing.T) {
	rl := NewRateLimiter(1, 1, WithNamespaces([]string{"orders"}))
	handler := rl.Middleware()(okHandler())

	for i := range 3 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, pushRequest(fmt.Sprintf("nope-%d", i)))
		if rr.Code != http.StatusOK {
			t.Errorf("request %d: got status %d, want it passed through", i, rr.Code)
		}
	}

	handler.ServeHTTP(httptest.NewRecorder(), pushRequest("orders"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, pushRequest("orders"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("orders second request: got status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}

	var tracked []string
	rl.limiters.Range(func(k, _ any) bool {
		tracked = append(tracked, k.(string))
		return true
	})
	if len(tracked) != 1 || tracked[0] != "orders" {
		t.Errorf("expected only orders to hold limiter state, got %v", tracked)
	}
}

func TestRateLimitMiddleware_BusyNamespaceKeepsItsLimiter(t *testing.T) {
	// One token per hour: only a fresh limiter would admit a second request.
	handler := NewRateLimiter(1.0/3600, 1, WithTTL(200*time.Millisecond)).Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := range 3 {
		if i > 0 {
			time.Sleep(120 * time.Millisecond)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, pushRequest("orders"))
		codes = append(codes, rr.Code)
	}

	want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: got status %d, want %d (the TTL must restart on each access)", i, codes[i], want[i])
		}
	}
}
