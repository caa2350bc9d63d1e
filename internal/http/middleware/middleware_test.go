package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vtuber-plan/purifly/internal/config"
	"github.com/vtuber-plan/purifly/internal/http/middleware"
	"github.com/vtuber-plan/purifly/internal/observability"
)

func corsConfig() *config.CORSConfig {
	return &config.CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

func TestBuildMiddlewareChain(t *testing.T) {
	t.Run("should inject trace identifiers into the request context", func(t *testing.T) {
		var traceID, requestID string
		inner := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			traceID = observability.GetTraceID(r.Context())
			requestID = observability.GetRequestID(r.Context())
		})

		chain := middleware.BuildMiddlewareChain(corsConfig())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		chain(inner).ServeHTTP(rec, req)

		require.NotEmpty(t, traceID)
		require.NotEmpty(t, requestID)
		require.Equal(t, traceID, rec.Header().Get("X-Trace-Id"))
		require.Equal(t, requestID, rec.Header().Get("X-Request-Id"))
	})

	t.Run("should answer CORS preflight without reaching the handler", func(t *testing.T) {
		reached := false
		inner := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			reached = true
		})

		chain := middleware.BuildMiddlewareChain(corsConfig())

		req := httptest.NewRequest(http.MethodOptions, "/v1/generate", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		chain(inner).ServeHTTP(rec, req)

		require.False(t, reached)
		require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("should reject disallowed origins", func(t *testing.T) {
		inner := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})

		chain := middleware.BuildMiddlewareChain(corsConfig())

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		chain(inner).ServeHTTP(rec, req)

		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestChain_Order(t *testing.T) {
	t.Run("should apply the first middleware outermost", func(t *testing.T) {
		var order []string
		tag := func(name string) middleware.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		chain := middleware.Chain(tag("outer"), tag("inner"))
		inner := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		chain(inner).ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, []string{"outer", "inner", "handler"}, order)
	})
}
