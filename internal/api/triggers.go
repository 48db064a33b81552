package api

import (
	"net/http"
)

// fireRequest is the optional body of POST /triggers/{id}/fire.
type fireRequest struct {
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleListTriggers(w http.ResponseWriter, _ *http.Request) {
	triggers := s.engine.TriggerStatuses()
	writeJSON(w, http.StatusOK, map[string]any{"triggers": triggers, "count": len(triggers)})
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.engine.TriggerStatus(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleArmTrigger(w http.ResponseWriter, r *http.Request) {
	s.setArmed(w, r, true)
}

func (s *Server) handleDisarmTrigger(w http.ResponseWriter, r *http.Request) {
	s.setArmed(w, r, false)
}

func (s *Server) setArmed(w http.ResponseWriter, r *http.Request, armed bool) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var err error
	if armed {
		err = s.engine.ArmTrigger(id)
	} else {
		err = s.engine.DisarmTrigger(id)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	st, err := s.engine.TriggerStatus(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleFireTrigger fires any trigger type, as an operator override.
func (s *Server) handleFireTrigger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body fireRequest
	if !decodeOptional(w, r, &body) {
		return
	}
	if err := s.engine.FireTrigger(r.Context(), id, body.Payload); err != nil {
		writeEngineError(w, err)
		return
	}
	s.logger.Info("trigger fired via API", "trigger_id", id, "subject", subjectFrom(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"trigger_id": id, "status": "fired"})
}

// handleHook fires an api trigger. The JSON body is the payload; query
// parameters are added for keys the body does not set.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payload := map[string]any{}
	if !decodeOptional(w, r, &payload) {
		return
	}
	for k, v := range r.URL.Query() {
		if _, set := payload[k]; !set && len(v) > 0 {
			payload[k] = v[0]
		}
	}

	if err := s.engine.Hook(r.Context(), id, payload); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"trigger_id": id, "status": "fired"})
}
