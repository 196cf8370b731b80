package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantHeader bool
	}{
		{"loopback origin", "GET", "http://localhost:3000", http.StatusOK, true},
		{"loopback address", "GET", "http://127.0.0.1:9470", http.StatusOK, true},
		{"preflight from loopback", "OPTIONS", "http://localhost:3000", http.StatusNoContent, true},
		{"exam page origin", "GET", "https://example.org", http.StatusForbidden, false},
		{"no origin header", "GET", "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == "OPTIONS" {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantHeader {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestIsLoopbackOrigin(t *testing.T) {
	assert.True(t, IsLoopbackOrigin("http://localhost"))
	assert.True(t, IsLoopbackOrigin("https://127.0.0.1:8443"))
	assert.True(t, IsLoopbackOrigin("http://[::1]:80"))
	assert.False(t, IsLoopbackOrigin("http://localhost.example.org"))
	assert.False(t, IsLoopbackOrigin("file://localhost"))
	assert.False(t, IsLoopbackOrigin("null"))
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(addr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("192.168.1.1:1234"))
	assert.Equal(t, http.StatusOK, do("192.168.1.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.168.1.1:1234"))

	// Separate bucket per client
	assert.Equal(t, http.StatusOK, do("192.168.1.2:1234"))
}

func TestDefaultConfigs(t *testing.T) {
	cors := DefaultCORSConfig()
	assert.Empty(t, cors.AllowOrigins)
	assert.NotContains(t, cors.AllowMethods, "POST")

	rl := DefaultRateLimitConfig()
	assert.Equal(t, 20, rl.RequestsPerSecond)
	assert.Equal(t, 40, rl.Burst)
}
