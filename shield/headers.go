package shield

import "net/http"

// DefaultHeaders returns the response headers of the locator API. It only
// ever answers JSON, and events carry previews of user-submitted page HTML,
// so nothing may be framed, sniffed, executed or cached.
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
	return h
}

// SecurityHeaders returns middleware that copies h onto every response
// before the handler runs, so a handler may still override a value.
func SecurityHeaders(h http.Header) func(http.Handler) http.Handler {
	h = h.Clone()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dst := w.Header()
			for k, v := range h {
				dst[k] = append([]string(nil), v...)
			}
			next.ServeHTTP(w, r)
		})
	}
}
