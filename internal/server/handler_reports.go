package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/bloodlens/pkg/model"
)

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user := UserFromContext(r.Context())

	opts := model.DefaultListOptions()
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opts.Offset = n
	}
	opts.Clamp()

	reports, total, err := s.store.ListReports(r.Context(), user.ID, opts)
	if err != nil {
		respondErr(w, s.logger, reqID, err)
		return
	}
	if reports == nil {
		reports = []*model.Report{}
	}
	respondList(w, reqID, reports, model.NewPagination(opts, total))
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	user := UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		respondErr(w, s.logger, reqID, err)
		return
	}
	if report == nil || report.UserID != user.ID {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("report", id))
		return
	}
	respondOK(w, reqID, report)
}
