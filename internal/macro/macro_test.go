package macro

import (
	"errors"
	"slices"
	"testing"
)

func TestMacro_ActivationNotifications(t *testing.T) {
	a := newStub("a", Continue, Complete)
	b := newStub("b", Continue)
	m := New("Landing", NewSequence("Descent", a, b))

	var paths [][]string
	m.OnActivate(func(act Activation) {
		paths = append(paths, act.Path)
	})

	ctx := testContext()
	m.Execute(ctx)
	m.Execute(ctx)

	want := [][]string{{"Descent"}, {"Descent", "a"}, {"Descent", "b"}}
	if len(paths) != len(want) {
		t.Fatalf("got %d activations %v, want %v", len(paths), paths, want)
	}
	for i := range want {
		if !slices.Equal(paths[i], want[i]) {
			t.Errorf("activation %d path = %v, want %v", i, paths[i], want[i])
		}
	}
	if m.ActiveNode() != b {
		t.Error("ActiveNode() is not the last activated node")
	}
	if got := m.ActivePath(); !slices.Equal(got, []string{"Descent", "b"}) {
		t.Errorf("ActivePath() = %v", got)
	}
}

func TestMacro_Title(t *testing.T) {
	a := newStub("Burn", Continue, Complete)
	m := New("Deorbit", a)

	if got := m.Title(); got != "Deorbit" {
		t.Errorf("idle Title() = %q, want %q", got, "Deorbit")
	}
	ctx := testContext()
	m.Execute(ctx)
	if got := m.Title(); got != "Deorbit [Burn]" {
		t.Errorf("running Title() = %q, want %q", got, "Deorbit [Burn]")
	}
	m.Execute(ctx)
	if got := m.Title(); got != "Deorbit" {
		t.Errorf("done Title() = %q, want %q", got, "Deorbit")
	}
}

func TestMacro_RunsToDone(t *testing.T) {
	m := New("M", newStub("a"), newStub("b"))
	got := tickN(m, testContext(), 3)
	if !slices.Equal(got, []Status{Continue, Complete, Complete}) {
		t.Errorf("statuses = %v", got)
	}
	if m.State() != StateDone {
		t.Errorf("State() = %v, want done", m.State())
	}
	if m.ActiveNode() != nil {
		t.Error("done macro still reports an active node")
	}
}

func TestMacro_RemovedActiveNodeIsDropped(t *testing.T) {
	a := newStub("a", Continue)
	b := newStub("b", Continue)
	seq := NewSequence("S", a, b)
	m := New("M", seq)
	ctx := testContext()
	m.Execute(ctx)

	seq.RemoveChild(a)
	if m.ActiveNode() != nil {
		t.Error("ActiveNode() returned a detached node")
	}
	if got := m.Title(); got != "M" {
		t.Errorf("Title() = %q, want %q", got, "M")
	}

	m.Execute(ctx)
	if m.ActiveNode() != b {
		t.Error("macro did not continue with the remaining child")
	}
}

func TestMacro_Nested(t *testing.T) {
	a := newStub("a", Continue)
	inner := New("Inner", a)
	outer := New("Outer", inner)

	var innerSeen, outerSeen []Activation
	inner.OnActivate(func(act Activation) { innerSeen = append(innerSeen, act) })
	outer.OnActivate(func(act Activation) { outerSeen = append(outerSeen, act) })

	outer.Execute(testContext())

	if len(innerSeen) != 1 || !slices.Equal(innerSeen[0].Path, []string{"a"}) {
		t.Errorf("inner activations = %+v", innerSeen)
	}
	if got := outer.ActivePath(); !slices.Equal(got, []string{"Inner", "a"}) {
		t.Errorf("outer ActivePath() = %v, want [Inner a]", got)
	}
	if len(outerSeen) != 2 {
		t.Errorf("outer saw %d activations, want 2", len(outerSeen))
	}
	if got := outer.Title(); got != "Outer [a]" {
		t.Errorf("Title() = %q", got)
	}
}

func TestMacro_AbortAndReset(t *testing.T) {
	a := newStub("a", Continue)
	m := New("M", a)
	ctx := testContext()
	m.Execute(ctx)

	m.Abort()
	if m.State() != StateAborted {
		t.Fatalf("State() = %v, want aborted", m.State())
	}
	if m.ActiveNode() != nil {
		t.Error("aborted macro reports an active node")
	}
	if st := m.Execute(ctx); st != Failed {
		t.Errorf("Execute after abort = %v, want failed", st)
	}

	m.Reset()
	if m.State() != StateIdle {
		t.Fatalf("State() after Reset = %v, want idle", m.State())
	}
	if st := m.Execute(ctx); st != Continue {
		t.Errorf("Execute after reset = %v, want continue", st)
	}
	if m.State() != StateRunning {
		t.Errorf("State() = %v, want running", m.State())
	}
}

func TestMacro_SelfInsertion(t *testing.T) {
	m := New("M")
	if err := m.AddChild(m); !errors.Is(err, ErrCycle) {
		t.Errorf("AddChild(self) err = %v, want ErrCycle", err)
	}
	inner := New("Inner")
	if err := m.AddChild(inner); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := inner.AddChild(m); !errors.Is(err, ErrCycle) {
		t.Errorf("AddChild(ancestor) err = %v, want ErrCycle", err)
	}
}

func TestMacro_SetNameAndCount(t *testing.T) {
	m := New("Old", NewSequence("S", newStub("a"), newStub("b")))
	m.SetName("New")
	if m.Name() != "New" {
		t.Errorf("Name() = %q", m.Name())
	}
	if n := CountNodes(m); n != 4 {
		t.Errorf("CountNodes = %d, want 4", n)
	}
}
