package api

import (
	"net/http"

	"github.com/nerrad567/showrunner/internal/automation"
)

// runRequest is the optional body of POST /routines/{id}/run.
type runRequest struct {
	Payload map[string]any `json:"payload"`
	// Wait runs the routine within the request and returns its result.
	// The run is aborted if the client goes away.
	Wait bool `json:"wait"`
}

// runResponse is a settled run. A failed or aborted run is still a 200;
// its status and error say how it ended.
type runResponse struct {
	*automation.RunResult
	Error string `json:"error,omitempty"`
}

// abortRequest is the optional body of POST /routines/{id}/abort.
type abortRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleListRoutines(w http.ResponseWriter, _ *http.Request) {
	routines := s.engine.RoutineStatuses()
	writeJSON(w, http.StatusOK, map[string]any{"routines": routines, "count": len(routines)})
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.engine.RoutineStatus(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleRunRoutine starts a routine in the background, or runs it in the
// request when wait is set.
func (s *Server) handleRunRoutine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body runRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	req := automation.RunRequest{Source: automation.SourceAPI, Payload: body.Payload}

	if body.Wait {
		res, err := s.engine.RunRoutine(r.Context(), id, req)
		if res == nil {
			writeEngineError(w, err)
			return
		}
		out := runResponse{RunResult: res}
		if err != nil {
			out.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	if err := s.engine.StartRoutine(id, req); err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("routine started via API", "routine_id", id, "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"routine_id": id, "status": "started"})
}

func (s *Server) handleAbortRoutine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body abortRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	if err := s.engine.AbortRoutine(id, body.Reason); err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("routine aborted via API", "routine_id", id, "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"routine_id": id, "status": "aborting"})
}
