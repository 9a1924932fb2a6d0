// Package shield holds the HTTP middleware in front of the locator API:
// security headers, request body limits, request IDs and bodiless HEAD answers.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(8 << 20) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// DefaultStack returns the standard middleware stack for the API.
// Order: HeadAsGet, SecurityHeaders, MaxBody, RequestID.
func DefaultStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadAsGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		RequestID,
	}
}
