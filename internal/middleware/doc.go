// Package middleware provides HTTP middleware for the diagnostics server.
//
// Middleware stack includes:
//   - CORS: cross-origin access restricted to loopback origins
//   - RateLimit: per-IP token bucket rate limiting
//
// The diagnostics server only ever listens on loopback, but any page the
// exam browser renders could still issue requests to it. CORS keeps those
// pages from reading responses and the rate limiter bounds how hard they
// can hammer it.
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
