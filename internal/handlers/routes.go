package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Routes wires the endpoints and wraps them with CORS, request IDs and
// access logging.
func (h *Handler) Routes(logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /labels", h.Labels)
	mux.HandleFunc("POST /classify", h.Classify)
	mux.HandleFunc("GET /dataset/stats", h.DatasetStats)
	mux.HandleFunc("POST /dataset/{split}", h.Capture)

	var handler http.Handler = enableCORS(mux)
	handler = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(handler)
	handler = hlog.RequestIDHandler("req_id", "X-Request-Id")(handler)
	handler = hlog.RemoteAddrHandler("remote")(handler)
	handler = hlog.NewHandler(logger)(handler)
	return handler
}
