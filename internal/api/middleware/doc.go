// Package middleware provides the HTTP middleware that surrounds the trace
// boundary.
//
// Middleware stack includes:
//   - CORS: lets browsers send a RequestID and read the resolved one back
//   - RateLimit: per-IP token bucket, idle clients are dropped
//   - GlobalRateLimit: one bucket shared by every client
//
// Rejections carry the request identifier when the trace boundary ran
// first, so a throttled caller can still quote it.
//
// Example Usage:
//
//	router.Use(filter.Gin())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
