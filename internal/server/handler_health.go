package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	Store      string `json:"store"`
	Model      string `json:"model"`
	DailyLimit int    `json:"daily_limit"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	status, storeStatus := "healthy", "ok"
	if _, err := s.store.CountUsers(r.Context()); err != nil {
		s.logger.Error("health check: store", "error", err)
		status, storeStatus = "degraded", "error"
	}

	respondOK(w, reqID, healthResponse{
		Status:     status,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Store:      storeStatus,
		Model:      s.app.LLM.Model,
		DailyLimit: s.analyzer.Limiter().Limit(),
	})
}
