// Package handlers provides the HTTP handlers of the media grabber API.
//
// It includes handlers for:
//   - Downloads by output kind (GET query form, JSON POST form and the legacy
//     /download?url&type form)
//   - Media metadata lookups
//   - Liveness, readiness, health and version probes
//
// A failed download is answered with a JSON error body unless the response
// was already started, in which case the connection is aborted.
package handlers
