package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/macro-autopilot/internal/macro"
)

const (
	// maxQueryParamLen limits ID and query parameter length.
	maxQueryParamLen = 100

	// maxNameParamLen bounds a macro name in a URL. Names are limited in
	// characters, so the byte limit allows for multi-byte runes.
	maxNameParamLen = 400
)

// saveResponse is returned by POST /macros.
type saveResponse struct {
	Entry    macro.Entry `json:"entry"`
	Replaced bool        `json:"replaced"`
	Warnings []string    `json:"warnings,omitempty"`
}

// handleListMacros returns all library entries sorted by name.
func (s *Server) handleListMacros(w http.ResponseWriter, r *http.Request) {
	entries := s.library.List(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"macros": entries, "count": len(entries)})
}

// handleGetMacro returns the entry and tree of the macro with the given name.
func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || len(name) > maxNameParamLen {
		writeBadRequest(w, "invalid macro name")
		return
	}

	entry, ok := s.library.Lookup(name)
	if !ok {
		writeNotFound(w, "macro not found")
		return
	}
	s.writeEntry(w, r, entry)
}

// handleSaveMacro stores a macro tree under its name.
//
// Query parameters:
//   - overwrite: replace an existing macro of the same name (default false)
func (s *Server) handleSaveMacro(w http.ResponseWriter, r *http.Request) {
	overwrite, ok := parseOverwrite(w, r)
	if !ok {
		return
	}

	var rec macro.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	m, loadErr := macro.DecodeMacro(rec)
	if m == nil {
		writeValidationError(w, loadErr.Error())
		return
	}

	_, existed := s.library.Lookup(m.Name())
	saved, err := s.library.Save(r.Context(), m, overwrite)
	if err != nil {
		if errors.Is(err, macro.ErrInvalidName) || errors.Is(err, macro.ErrInvalidMacro) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("saving macro failed", "name", m.Name(), "error", err)
		writeInternalError(w, "failed to save macro")
		return
	}
	if !saved {
		writeError(w, http.StatusConflict, ErrCodeConflict, "macro already exists")
		return
	}

	entry, _ := s.library.Lookup(m.Name())
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, saveResponse{
		Entry:    entry,
		Replaced: existed,
		Warnings: macro.Warnings(loadErr),
	})
}

// handleClearLibrary removes every macro.
func (s *Server) handleClearLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Clear(r.Context()); err != nil {
		s.logger.Error("clearing library failed", "error", err)
		writeInternalError(w, "failed to clear library")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExportLibrary returns the library as a YAML library file.
func (s *Server) handleExportLibrary(w http.ResponseWriter, r *http.Request) {
	data, err := s.library.Export(r.Context())
	if err != nil {
		s.logger.Error("exporting library failed", "error", err)
		writeInternalError(w, "failed to export library")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="macros.yaml"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleImportLibrary saves every macro in a YAML library file.
//
// Query parameters:
//   - overwrite: replace macros whose names are already taken (default false)
func (s *Server) handleImportLibrary(w http.ResponseWriter, r *http.Request) {
	overwrite, ok := parseOverwrite(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}
	if len(data) == 0 {
		writeBadRequest(w, "library file is empty")
		return
	}

	res, err := s.library.Import(r.Context(), data, overwrite)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleGetEntry returns the entry and tree with the given ID.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	for _, e := range s.library.List(r.Context()) {
		if e.ID == id {
			s.writeEntry(w, r, e)
			return
		}
	}
	writeNotFound(w, "entry not found")
}

// renameRequest is the request body for PATCH /entries/{id}.
type renameRequest struct {
	Name string `json:"name"`
}

// handleRenameEntry changes an entry's name.
func (s *Server) handleRenameEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.library.Rename(r.Context(), id, req.Name); err != nil {
		switch {
		case errors.Is(err, macro.ErrInvalidName):
			writeValidationError(w, err.Error())
		case errors.Is(err, macro.ErrNotFound):
			writeNotFound(w, "entry not found")
		case errors.Is(err, macro.ErrExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "name already in use")
		default:
			s.logger.Error("renaming macro failed", "id", id, "error", err)
			writeInternalError(w, "failed to rename macro")
		}
		return
	}

	entry, _ := s.library.Lookup(req.Name)
	writeJSON(w, http.StatusOK, entry)
}

// handleRemoveEntry deletes an entry.
func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	removed, err := s.library.Remove(r.Context(), id)
	if err != nil {
		s.logger.Error("removing macro failed", "id", id, "error", err)
		writeInternalError(w, "failed to remove macro")
		return
	}
	if !removed {
		writeNotFound(w, "entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSelectEntry loads a copy of the entry's macro into the engine.
func (s *Server) handleSelectEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	if err := s.engine.LoadByID(r.Context(), id); err != nil {
		if errors.Is(err, macro.ErrNotFound) {
			writeNotFound(w, "entry not found")
			return
		}
		s.logger.Error("selecting macro failed", "id", id, "error", err)
		writeInternalError(w, "failed to load macro")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) writeEntry(w http.ResponseWriter, r *http.Request, entry macro.Entry) {
	rec, err := s.library.Record(r.Context(), entry.ID)
	if err != nil {
		if errors.Is(err, macro.ErrNotFound) {
			writeNotFound(w, "macro not found")
			return
		}
		writeInternalError(w, "failed to encode macro")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "tree": rec})
}

func entryID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid entry ID")
		return "", false
	}
	return id, true
}

func parseOverwrite(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("overwrite")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeBadRequest(w, "overwrite must be a boolean")
		return false, false
	}
	return v, true
}
