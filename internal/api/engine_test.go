package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/nerrad567/macro-autopilot/internal/macro"
)

func TestEngineSnapshot_NoMacro(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/engine", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap macro.Snapshot
	decodeBody(t, w, &snap)
	if snap.VesselID != "lander-1" || snap.Macro != "" || snap.State != macro.StateIdle {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEngineLoad_AdHoc(t *testing.T) {
	srv, lib := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodPost, "/api/v1/engine/load", macroJSON(t, hop("Scratch")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var snap macro.Snapshot
	decodeBody(t, w, &snap)
	if snap.Macro != "Scratch" || snap.EntryID != nil {
		t.Errorf("snapshot = %+v", snap)
	}
	if lib.Count() != 0 {
		t.Errorf("ad hoc load saved to library, count = %d", lib.Count())
	}

	w = do(t, router, http.MethodPost, "/api/v1/engine/load", []byte(`{"type":"wait"}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-macro root status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	w = do(t, router, http.MethodPost, "/api/v1/engine/load", []byte(`{`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestEngineAbortReset_NoMacro(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	for _, path := range []string{"/api/v1/engine/abort", "/api/v1/engine/reset"} {
		w := do(t, router, http.MethodPost, path, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusConflict)
		}
	}
}

func TestEngineAbortResetUnload(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	ctx := context.Background()

	if err := srv.engine.LoadMacro(ctx, macro.New("Long", macro.NewWait(60))); err != nil {
		t.Fatalf("LoadMacro: %v", err)
	}
	if st, err := srv.engine.Tick(ctx); err != nil || st != macro.Continue {
		t.Fatalf("Tick = %v, %v", st, err)
	}

	w := do(t, router, http.MethodPost, "/api/v1/engine/abort", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("abort status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap macro.Snapshot
	decodeBody(t, w, &snap)
	if snap.State != macro.StateAborted {
		t.Errorf("state after abort = %q, want %q", snap.State, macro.StateAborted)
	}

	w = do(t, router, http.MethodPost, "/api/v1/engine/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d, want %d", w.Code, http.StatusOK)
	}
	decodeBody(t, w, &snap)
	if snap.State != macro.StateIdle || snap.Tick != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}

	w = do(t, router, http.MethodDelete, "/api/v1/engine", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("unload status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := srv.engine.Snapshot().Macro; got != "" {
		t.Errorf("macro after unload = %q, want none", got)
	}
}

func TestListRuns(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()
	ctx := context.Background()

	w := do(t, router, http.MethodGet, "/api/v1/engine/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var empty struct {
		Runs  []macro.Run `json:"runs"`
		Count int         `json:"count"`
	}
	decodeBody(t, w, &empty)
	if empty.Runs == nil || empty.Count != 0 {
		t.Errorf("empty runs = %+v, want an empty list", empty)
	}

	for iter := 0; iter < 3; iter++ {
		if err := srv.engine.LoadMacro(ctx, macro.New("Quick", macro.NewSetThrottle(0))); err != nil {
			t.Fatalf("LoadMacro: %v", err)
		}
		for iter := 0; iter < 3; iter++ {
			srv.engine.Tick(ctx) //nolint:errcheck // status checked through the run log
		}
	}

	w = do(t, router, http.MethodGet, "/api/v1/engine/runs?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp struct {
		Runs  []macro.Run `json:"runs"`
		Count int         `json:"count"`
	}
	decodeBody(t, w, &resp)
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	for _, r := range resp.Runs {
		if r.Status != macro.RunCompleted || r.MacroName != "Quick" {
			t.Errorf("run = %+v", r)
		}
	}

	for _, bad := range []string{"0", "101", "abc"} {
		w = do(t, router, http.MethodGet, "/api/v1/engine/runs?limit="+bad, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want %d", bad, w.Code, http.StatusBadRequest)
		}
	}
}
