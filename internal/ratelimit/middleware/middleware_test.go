package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentledger/internal/ratelimit"
	"agentledger/internal/ratelimit/models"
	"agentledger/internal/ratelimit/store"
	"agentledger/pkg/domain"
	"agentledger/pkg/requestcontext"
)

func newLimitedHandler(t *testing.T, limits map[models.EndpointClass]models.Limit) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(store.NewInMemory(), ratelimit.WithLimits(limits))
	m := New(limiter, logger)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return m.Limit(models.ClassWrite)(next)
}

func TestLimitAllowsWithinBudget(t *testing.T) {
	handler := newLimitedHandler(t, map[models.EndpointClass]models.Limit{
		models.ClassWrite: {Requests: 2, Window: time.Minute},
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/agents", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), domain.Principal("operator-1")))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimitRejectsOverBudget(t *testing.T) {
	handler := newLimitedHandler(t, map[models.EndpointClass]models.Limit{
		models.ClassWrite: {Requests: 1, Window: time.Minute},
	})

	first := httptest.NewRequest(http.MethodPost, "/agents", nil)
	first = first.WithContext(requestcontext.WithPrincipal(first.Context(), domain.Principal("operator-1")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/agents", nil)
	second = second.WithContext(requestcontext.WithPrincipal(second.Context(), domain.Principal("operator-1")))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLimitKeysByPrincipal(t *testing.T) {
	handler := newLimitedHandler(t, map[models.EndpointClass]models.Limit{
		models.ClassWrite: {Requests: 1, Window: time.Minute},
	})

	for _, principal := range []string{"operator-1", "operator-2"} {
		req := httptest.NewRequest(http.MethodPost, "/agents", nil)
		req = req.WithContext(requestcontext.WithPrincipal(req.Context(), domain.Principal(principal)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "principal %s should have its own budget", principal)
	}
}

func TestLimitFallsBackToRemoteAddr(t *testing.T) {
	handler := newLimitedHandler(t, map[models.EndpointClass]models.Limit{
		models.ClassWrite: {Requests: 1, Window: time.Minute},
	})

	req := httptest.NewRequest(http.MethodPost, "/agents", nil)
	req.RemoteAddr = "10.0.0.1:52000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	again := httptest.NewRequest(http.MethodPost, "/agents", nil)
	again.RemoteAddr = "10.0.0.1:52001"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, again)
	require.Equal(t, http.StatusTooManyRequests, rec.Code, "same host behind different ports shares a budget")
}

func TestDisabledPassesThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := ratelimit.New(store.NewInMemory(), ratelimit.WithLimits(map[models.EndpointClass]models.Limit{
		models.ClassWrite: {Requests: 0, Window: time.Minute},
	}))
	m := New(limiter, logger, WithDisabled(true))
	handler := m.Limit(models.ClassWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/agents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
