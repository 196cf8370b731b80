package middleware

import (
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows read-only access from loopback origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{
			"Accept",
			"Cache-Control",
			"Content-Type",
			"Origin",
		},
		MaxAge: 12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration. An empty
// AllowOrigins list admits loopback origins only.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: cfg.AllowHeaders,
		MaxAge:       cfg.MaxAge,
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = nil
		c.AllowOriginFunc = IsLoopbackOrigin
	}
	return cors.New(c)
}

// IsLoopbackOrigin reports whether origin is an http(s) origin on localhost
// or a loopback address.
func IsLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
