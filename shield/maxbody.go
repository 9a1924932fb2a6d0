package shield

import "net/http"

// MaxBody returns middleware that limits every request body to maxBytes.
// Page HTML travels in request bodies, so the limit is per request rather
// than per content type. maxBytes <= 0 disables the limit.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
