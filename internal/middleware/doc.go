// Package middleware provides HTTP middleware for media-grabber.
//
// It includes:
//   - Request ids (X-Request-ID) and access logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route
//   - Per-IP rate limiting with a JSON 429 body
//   - CORS for browser front-ends
//   - gzip compression for JSON responses
package middleware
