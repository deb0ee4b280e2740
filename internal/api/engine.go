package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/macro-autopilot/internal/macro"
)

// maxRunsLimit caps the number of runs returned by GET /engine/runs.
const maxRunsLimit = 100

// handleEngineSnapshot returns the engine's current state.
func (s *Server) handleEngineSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleEngineLoad installs an ad hoc macro tree that is not saved to the
// library. Malformed nodes are dropped and reported as run warnings.
func (s *Server) handleEngineLoad(w http.ResponseWriter, r *http.Request) {
	var rec macro.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.engine.LoadRecord(r.Context(), rec); err != nil {
		s.logger.Debug("ad hoc macro rejected", "error", err)
		writeValidationError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleEngineAbort stops the loaded macro.
func (s *Server) handleEngineAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Abort(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleEngineReset returns the loaded macro to Idle.
func (s *Server) handleEngineReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleEngineUnload removes the loaded macro.
func (s *Server) handleEngineUnload(w http.ResponseWriter, r *http.Request) {
	s.engine.Unload(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleListRuns returns recent runs on the engine's vessel, newest first.
//
// Query parameters:
//   - limit: maximum number of runs (default 10, max 100)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if len(raw) > maxQueryParamLen {
			writeBadRequest(w, "limit exceeds maximum length")
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxRunsLimit {
			writeBadRequest(w, "limit must be between 1 and 100")
			return
		}
		limit = v
	}

	runs, err := s.engine.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs failed", "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []macro.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, macro.ErrNoMacro) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "no macro loaded")
		return
	}
	writeInternalError(w, "engine operation failed")
}
