package recorder

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/locator/audit"
	"github.com/hazyhaar/locator/codegen"
	"github.com/hazyhaar/locator/kit"
	"github.com/hazyhaar/locator/shield"
)

// Handler returns the HTTP API:
//
//	GET    /health
//	POST   /resolve
//	POST   /events
//	GET    /events?limit=&url=
//	GET    /events/{id}
//	DELETE /events/{id}
//	GET    /events/{id}/buckets
//	POST   /events/{id}/apply
//	POST   /events/{id}/ai
//	GET    /events/{id}/code?framework=
//	GET    /audit?operation=&status=&limit=
func (r *Recorder) Handler() http.Handler {
	eps := r.endpoints()

	mux := chi.NewRouter()
	for _, mw := range shield.DefaultStack(r.config.MaxBody) {
		mux.Use(mw)
	}

	mux.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := r.store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Get("/audit", func(w http.ResponseWriter, req *http.Request) {
		f := &audit.Filter{
			Operation: req.URL.Query().Get("operation"),
			Status:    req.URL.Query().Get("status"),
			Limit:     queryInt(req, "limit", 100),
		}
		serve(w, req, eps.trail, f, http.StatusOK)
	})

	mux.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
		var p Page
		if !decodeBody(w, req, &p) {
			return
		}
		serve(w, req, eps.resolve, &p, http.StatusOK)
	})

	mux.Route("/events", func(mux chi.Router) {
		mux.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var rr RecordPageRequest
			if !decodeBody(w, req, &rr) {
				return
			}
			serve(w, req, eps.record, &rr, http.StatusCreated)
		})

		mux.Get("/", func(w http.ResponseWriter, req *http.Request) {
			lr := &listRequest{
				Limit: queryInt(req, "limit", 50),
				URL:   req.URL.Query().Get("url"),
			}
			serve(w, req, eps.list, lr, http.StatusOK)
		})

		mux.Route("/{id}", func(mux chi.Router) {
			mux.Get("/", func(w http.ResponseWriter, req *http.Request) {
				serve(w, req, eps.get, &idRequest{ID: chi.URLParam(req, "id")}, http.StatusOK)
			})

			mux.Delete("/", func(w http.ResponseWriter, req *http.Request) {
				serve(w, req, eps.delete, &idRequest{ID: chi.URLParam(req, "id")}, http.StatusOK)
			})

			mux.Get("/buckets", func(w http.ResponseWriter, req *http.Request) {
				serve(w, req, eps.buckets, &idRequest{ID: chi.URLParam(req, "id")}, http.StatusOK)
			})

			mux.Post("/apply", func(w http.ResponseWriter, req *http.Request) {
				var ar applyRequest
				if !decodeBody(w, req, &ar.ApplyRequest) {
					return
				}
				ar.ID = chi.URLParam(req, "id")
				serve(w, req, eps.apply, &ar, http.StatusOK)
			})

			mux.Post("/ai", func(w http.ResponseWriter, req *http.Request) {
				var sr suggestRequest
				if !decodeBody(w, req, &sr) {
					return
				}
				sr.ID = chi.URLParam(req, "id")
				serve(w, req, eps.suggest, &sr, http.StatusOK)
			})

			mux.Get("/code", func(w http.ResponseWriter, req *http.Request) {
				cr := &codeRequest{
					ID:        chi.URLParam(req, "id"),
					Framework: codegen.Framework(req.URL.Query().Get("framework")),
				}
				serve(w, req, eps.code, cr, http.StatusOK)
			})
		})
	})

	return mux
}

// serve runs ep and writes its JSON response with status ok, or the
// error mapped to a status code.
func serve(w http.ResponseWriter, req *http.Request, ep kit.Endpoint, request any, ok int) {
	ctx := kit.WithTransport(req.Context(), "http")
	resp, err := ep(ctx, request)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, ok, resp)
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeError(w, code, err)
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrNoTarget):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoBrowser):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
