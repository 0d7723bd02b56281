package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/connection", func(r chi.Router) {
			r.Post("/reload", s.handleConnectionReload)
			r.Post("/rebirth", s.handleRebirth)
			r.Post("/certificates/reload", s.handleCertificatesReload)
		})

		r.Route("/buffer", func(r chi.Router) {
			r.Get("/", s.handleBufferStatus)
			r.Put("/ceiling", s.handleSetCeiling)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags)
			r.Post("/reset", s.handleTagsReset)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"state":   s.conn.State().String(),
	})
}

// handleConnectionReload tears down the broker session and reconnects
// with freshly loaded configuration.
func (s *Server) handleConnectionReload(w http.ResponseWriter, r *http.Request) {
	if err := s.conn.Reload(r.Context()); err != nil {
		s.logger.Error("connection reload failed", "error", err)
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}

// handleCertificatesReload re-reads TLS material from disk and
// re-establishes the broker session with it.
func (s *Server) handleCertificatesReload(w http.ResponseWriter, r *http.Request) {
	if err := s.conn.ReloadCertificates(r.Context()); err != nil {
		s.logger.Error("certificate reload failed", "error", err)
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded"})
}

// handleRebirth republishes the birth sequence on the current session.
func (s *Server) handleRebirth(w http.ResponseWriter, _ *http.Request) {
	if err := s.conn.Rebirth(); err != nil {
		s.logger.Error("rebirth failed", "error", err)
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "rebirth published"})
}

// handleBufferStatus returns current buffer occupancy.
func (s *Server) handleBufferStatus(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Metrics(r.Context())
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bufferMetricsResponse(m))
}

// ceilingRequest is the body for PUT /buffer/ceiling.
type ceilingRequest struct {
	CeilingBytes int64 `json:"ceiling_bytes"`
}

// handleSetCeiling updates the buffer occupancy ceiling at runtime.
func (s *Server) handleSetCeiling(w http.ResponseWriter, r *http.Request) {
	var req ceilingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.store.SetCeiling(req.CeilingBytes); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.logger.Info("buffer ceiling updated", "ceiling_bytes", req.CeilingBytes)
	writeJSON(w, http.StatusOK, map[string]any{"ceiling_bytes": req.CeilingBytes})
}

// tagResponse describes one configured tag.
type tagResponse struct {
	Name     string  `json:"name"`
	Alias    uint64  `json:"alias"`
	DataType string  `json:"data_type"`
	Unit     string  `json:"unit,omitempty"`
	Desc     string  `json:"desc,omitempty"`
	Deadband float64 `json:"deadband,omitempty"`
}

// handleListTags returns the configured tag definitions in config order.
func (s *Server) handleListTags(w http.ResponseWriter, _ *http.Request) {
	defs := s.registry.All()
	tags := make([]tagResponse, 0, len(defs))
	for _, def := range defs {
		tags = append(tags, tagResponse{
			Name:     def.Name,
			Alias:    def.Alias,
			DataType: def.DataType.String(),
			Unit:     def.Unit,
			Desc:     def.Desc,
			Deadband: def.Deadband,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// handleTagsReset clears all deadband baselines so every tag publishes on
// its next sample.
func (s *Server) handleTagsReset(w http.ResponseWriter, _ *http.Request) {
	s.filter.Reset()
	s.logger.Info("deadband baselines reset")
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}
