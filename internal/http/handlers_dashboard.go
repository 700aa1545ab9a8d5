package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

const reportNotFound = "User not found"

// resolveMonth reads ?month= (empty for the current month, "all" for every
// month) and writes a 400 when it is malformed.
func (s *Server) resolveMonth(w http.ResponseWriter, r *http.Request) (*core.Period, bool) {
	period, err := s.deps.Reports.ResolvePeriod(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		respondError(w, r, err, reportNotFound, applog.OpValidate)
		return nil, false
	}
	return period, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	period, ok := s.resolveMonth(w, r)
	if !ok {
		return
	}

	summary, err := s.deps.Reports.Summary(r.Context(), userID, period)
	if err != nil {
		respondError(w, r, err, reportNotFound, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, summary.Rounded())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	dash, err := s.deps.Reports.Dashboard(r.Context(), userID)
	if err != nil {
		respondError(w, r, err, reportNotFound, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, dash.Rounded())
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	period, ok := s.resolveMonth(w, r)
	if !ok {
		return
	}

	notes, err := s.deps.Reports.Notifications(r.Context(), userID, period)
	if err != nil {
		respondError(w, r, err, reportNotFound, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, core.RoundNotifications(notes))
}
