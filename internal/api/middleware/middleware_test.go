package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(router *gin.Engine, method, path, remote, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
		if method == http.MethodOptions {
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name           string
		method         string
		origin         string
		wantStatus     int
		wantCORSHeader bool
	}{
		{
			name:           "simple GET request with origin",
			method:         http.MethodGet,
			origin:         "http://localhost:3000",
			wantStatus:     http.StatusOK,
			wantCORSHeader: true,
		},
		{
			name:           "preflight OPTIONS request",
			method:         http.MethodOptions,
			origin:         "http://localhost:3000",
			wantStatus:     http.StatusNoContent,
			wantCORSHeader: true,
		},
		{
			name:       "no origin header",
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, "/test", "", tt.origin)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCORSHeader {
				assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSWithOrigins(t *testing.T) {
	cfg := DefaultCORSConfig().WithOrigins([]string{"https://hmi.local"})
	cfg.AllowCredentials = true
	assert.Equal(t, []string{"https://hmi.local"}, cfg.AllowOrigins)
	assert.Equal(t, []string{"*"}, DefaultCORSConfig().WithOrigins(nil).AllowOrigins)

	router := setupTestRouter()
	router.Use(CORS(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(router, http.MethodGet, "/test", "", "https://hmi.local")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://hmi.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = serve(router, http.MethodGet, "/test", "", "https://elsewhere.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	// Burst capacity first
	for i := 0; i < 2; i++ {
		w := serve(router, http.MethodGet, "/test", "192.168.1.1:1234", "")
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := serve(router, http.MethodGet, "/test", "192.168.1.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/test", "192.168.1.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/test", "192.168.1.2:1234", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/test", "192.168.1.1:1234", "").Code)
}

func TestRateLimitSkip(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, Skip: SkipPaths("/hmi")}))
	router.GET("/hmi", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/hmi", "192.168.1.1:1234", "").Code)
	}
}

func TestLimiterSetEvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTimeout: time.Minute}, func() time.Time { return now })

	assert.True(t, set.allow("10.0.0.1"))
	assert.False(t, set.allow("10.0.0.1"))
	assert.True(t, set.allow("10.0.0.2"))
	assert.Equal(t, 2, set.size())

	now = now.Add(2 * time.Minute)
	assert.True(t, set.allow("10.0.0.3"))
	assert.Equal(t, 1, set.size())
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()

	assert.Equal(t, 100, cfg.RequestsPerSecond)
	assert.Equal(t, 200, cfg.Burst)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(DefaultRateLimitConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

func TestRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := setupTestRouter()
	router.Use(RequestID(zap.New(core)))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := serve(router, http.MethodGet, "/test", "", "")
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "hu-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "hu-42", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("Request handled").All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "hu-42", entries[1].ContextMap()["request_id"])
		assert.Equal(t, "/test", entries[1].ContextMap()["path"])
	}
}
