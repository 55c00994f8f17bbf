package commands

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusPath is the admin endpoint reporting the worker state.
const StatusPath = "/.shell/status"

type status struct {
	Version     string   `json:"version"`
	State       string   `json:"state"`
	Active      bool     `json:"active"`
	Generations []string `json:"generations"`
}

// adminRouter serves the admin endpoints and proxies everything else.
func adminRouter(s *shellInstance) http.Handler {
	r := chi.NewRouter()
	r.Get(StatusPath, func(w http.ResponseWriter, r *http.Request) {
		names, err := s.storage.Names(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Could not list generations")
			http.Error(w, "cache store unavailable", http.StatusServiceUnavailable)
			return
		}
		active := s.registration.Active()
		st := status{
			Version:     s.worker.Version(),
			State:       s.worker.State().String(),
			Active:      active == s.worker,
			Generations: names,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(st); err != nil {
			log.Error().Err(err).Msg("Could not write status")
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", s.registration)
	return r
}
