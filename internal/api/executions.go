package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/showrunner/internal/audit"
	"github.com/nerrad567/showrunner/internal/automation"
)

// handleListExecutions returns stored runs, newest first.
//
// Query parameters:
//   - routine_id, trigger_id, status: exact filters
//   - since: RFC 3339 lower bound on started_at
//   - limit (default 50, max 200), offset
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		RoutineID: q.Get("routine_id"),
		TriggerID: q.Get("trigger_id"),
		Status:    automation.RunStatus(q.Get("status")),
	}
	if len(filter.RoutineID) > maxIDLen || len(filter.TriggerID) > maxIDLen || len(filter.Status) > maxIDLen {
		writeBadRequest(w, "filter value exceeds maximum length")
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	res, err := s.executions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing executions failed", "error", err)
		writeInternalError(w, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetExecution returns one run with its execution log tree.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "execution history is not configured")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	run, err := s.executions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrRunNotFound) {
			writeNotFound(w, "execution not found")
			return
		}
		s.logger.Error("loading execution failed", "execution_id", id, "error", err)
		writeInternalError(w, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func intParam(w http.ResponseWriter, v, name string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
