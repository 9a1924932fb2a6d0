package shield

import "net/http"

// HeadAsGet routes HEAD requests through the GET handlers, so health checks
// and link checkers hitting /health or /events/{id} see the GET status and headers.
// The handler still runs, but its body is dropped before it reaches the
// connection: event listings can be large and nobody reads them on HEAD.
func HeadAsGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		r.Method = http.MethodGet
		next.ServeHTTP(headWriter{w}, r)
	})
}

// headWriter reports body writes as complete without forwarding them.
type headWriter struct {
	http.ResponseWriter
}

func (h headWriter) Write(p []byte) (int, error) {
	return len(p), nil
}
