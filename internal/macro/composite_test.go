package macro

import (
	"errors"
	"slices"
	"testing"
)

// ─── Test Nodes ─────────────────────────────────────────────────────────────

// stubNode returns scripted results. The last result repeats once the
// script runs out. Reset restarts the script.
type stubNode struct {
	nodeBase
	script []Status
	calls  int // executions since the last Reset
	total  int // executions overall
	resets int
}

func newStub(name string, script ...Status) *stubNode {
	if len(script) == 0 {
		script = []Status{Complete}
	}
	return &stubNode{nodeBase: newBase(name), script: script}
}

func (n *stubNode) Kind() string { return "stub" }
func (n *stubNode) params() any  { return nil }

func (n *stubNode) Reset() {
	n.state = StateIdle
	n.calls = 0
	n.resets++
}

func (n *stubNode) Execute(_ *Context) Status {
	st := n.script[min(n.calls, len(n.script)-1)]
	n.calls++
	n.total++
	return st
}

// stubCond is a condition with a fixed answer.
type stubCond struct{ holds bool }

func (c *stubCond) Kind() string          { return "stub" }
func (c *stubCond) params() any           { return nil }
func (c *stubCond) Holds(_ *Context) bool { return c.holds }

func testContext() *Context {
	return &Context{DT: 0.1, Env: DefaultEnv()}
}

// tickN executes n for count ticks and returns every status.
func tickN(n Node, ctx *Context, count int) []Status {
	out := make([]Status, 0, count)
	for iter := 0; iter < count; iter++ {
		out = append(out, n.Execute(ctx))
		ctx.Tick++
	}
	return out
}

// ─── Sequence ───────────────────────────────────────────────────────────────

func TestSequence_AdvancesOneChildPerCompletion(t *testing.T) {
	a := newStub("a", Complete)
	b := newStub("b", Continue, Complete)
	c := newStub("c", Complete)
	seq := NewSequence("seq", a, b, c)

	got := tickN(seq, testContext(), 4)
	want := []Status{Continue, Continue, Continue, Complete}
	if !slices.Equal(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if a.total != 1 || b.total != 2 || c.total != 1 {
		t.Errorf("executions a=%d b=%d c=%d, want 1/2/1", a.total, b.total, c.total)
	}
	if seq.State() != StateDone {
		t.Errorf("State() = %v, want done", seq.State())
	}
}

func TestSequence_ActiveChildHoldsUntilCompletion(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		script := make([]Status, 0, n+1)
		for iter := 0; iter < n; iter++ {
			script = append(script, Continue)
		}
		a := newStub("a", append(script, Complete)...)
		b := newStub("b", Continue)
		c := newStub("c")
		seq := NewSequence("seq", a, b, c)
		ctx := testContext()

		for tick := 1; tick <= n; tick++ {
			if st := seq.Execute(ctx); st != Continue {
				t.Fatalf("N=%d tick %d: status = %v, want continue", n, tick, st)
			}
			if got := seq.Active(); got != a {
				t.Fatalf("N=%d tick %d: active = %v, want a", n, tick, got)
			}
		}

		if st := seq.Execute(ctx); st != Continue {
			t.Fatalf("N=%d completion tick: status = %v, want continue", n, st)
		}
		if got := seq.Active(); got != b {
			t.Fatalf("N=%d completion tick: active = %v, want b", n, got)
		}
		if b.total != 0 || c.total != 0 {
			t.Errorf("N=%d: b ran %d times, c ran %d times before their turn", n, b.total, c.total)
		}

		seq.Execute(ctx)
		if got := seq.Active(); got != b || b.total != 1 {
			t.Errorf("N=%d next tick: active = %v, b executions = %d, want b once", n, got, b.total)
		}
		if a.total != n+1 {
			t.Errorf("N=%d: a executed %d times, want %d", n, a.total, n+1)
		}
	}
}

func TestSequence_DoneReturnsCachedResult(t *testing.T) {
	a := newStub("a", Complete)
	seq := NewSequence("seq", a)
	ctx := testContext()

	if st := seq.Execute(ctx); st != Complete {
		t.Fatalf("first Execute = %v, want complete", st)
	}
	for iter := 0; iter < 3; iter++ {
		if st := seq.Execute(ctx); st != Complete {
			t.Errorf("Execute after done = %v, want complete", st)
		}
	}
	if a.total != 1 {
		t.Errorf("child executed %d times after done, want 1", a.total)
	}
}

func TestSequence_Empty(t *testing.T) {
	seq := NewSequence("empty")
	if st := seq.Execute(testContext()); st != Complete {
		t.Errorf("empty sequence = %v, want complete", st)
	}
}

func TestSequence_FailFast(t *testing.T) {
	a := newStub("a", Failed)
	b := newStub("b", Complete)
	seq := NewSequence("seq", a, b)

	if st := seq.Execute(testContext()); st != Failed {
		t.Fatalf("Execute = %v, want failed", st)
	}
	if b.total != 0 {
		t.Error("child after failure was executed")
	}
	if seq.State() != StateDone {
		t.Errorf("State() = %v, want done", seq.State())
	}
}

func TestSequence_ContinueOnError(t *testing.T) {
	a := newStub("a", Failed)
	b := newStub("b", Complete)
	seq := NewSequence("seq", a, b)
	seq.SetContinueOnError(true)

	got := tickN(seq, testContext(), 2)
	if !slices.Equal(got, []Status{Continue, Complete}) {
		t.Errorf("statuses = %v, want [continue complete]", got)
	}
	if b.total != 1 {
		t.Errorf("b executed %d times, want 1", b.total)
	}
}

func TestSequence_ActivationResetsChild(t *testing.T) {
	a := newStub("a", Complete)
	loop := NewLoop("loop", 3, a)
	tickN(loop, testContext(), 3)

	if a.resets != 3 {
		t.Errorf("child reset %d times, want once per activation (3)", a.resets)
	}
}

// ─── Choice ─────────────────────────────────────────────────────────────────

func TestChoice_FirstEligibleChild(t *testing.T) {
	a := newStub("a", Complete)
	a.SetGuard(&stubCond{holds: false})
	b := newStub("b", Continue, Complete)
	b.SetGuard(&stubCond{holds: true})
	c := newStub("c", Complete)
	choice := NewChoice("choice", a, b, c)

	got := tickN(choice, testContext(), 2)
	if !slices.Equal(got, []Status{Continue, Complete}) {
		t.Fatalf("statuses = %v, want [continue complete]", got)
	}
	if a.total != 0 || c.total != 0 {
		t.Errorf("ineligible or later children ran: a=%d c=%d", a.total, c.total)
	}
	if b.total != 2 {
		t.Errorf("b executed %d times, want 2", b.total)
	}
}

func TestChoice_UnguardedChildIsEligible(t *testing.T) {
	a := newStub("a", Complete)
	a.SetGuard(&stubCond{holds: false})
	b := newStub("b", Failed)
	choice := NewChoice("choice", a, b)

	if st := choice.Execute(testContext()); st != Failed {
		t.Errorf("Execute = %v, want failed from unguarded child", st)
	}
}

func TestChoice_NoneEligible(t *testing.T) {
	a := newStub("a", Failed)
	a.SetGuard(&stubCond{holds: false})
	choice := NewChoice("choice", a)

	if st := choice.Execute(testContext()); st != Complete {
		t.Errorf("Execute = %v, want complete", st)
	}
	if a.total != 0 {
		t.Error("ineligible child executed")
	}
}

// ─── Loop ───────────────────────────────────────────────────────────────────

func TestLoop_Counted(t *testing.T) {
	a := newStub("a", Complete)
	b := newStub("b", Complete)
	loop := NewLoop("loop", 2, a, b)

	got := tickN(loop, testContext(), 4)
	want := []Status{Continue, Continue, Continue, Complete}
	if !slices.Equal(got, want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	if a.total != 2 || b.total != 2 {
		t.Errorf("executions a=%d b=%d, want 2/2", a.total, b.total)
	}
}

func TestLoop_Forever(t *testing.T) {
	a := newStub("a", Complete)
	loop := NewLoop("loop", 0, a)

	for i, st := range tickN(loop, testContext(), 50) {
		if st != Continue {
			t.Fatalf("tick %d = %v, want continue", i, st)
		}
	}
	if a.total != 50 {
		t.Errorf("child executed %d times, want 50", a.total)
	}
}

// ─── Conditional ────────────────────────────────────────────────────────────

func TestConditional(t *testing.T) {
	tests := []struct {
		name     string
		holds    bool
		withElse bool
		wantThen int
		wantElse int
	}{
		{name: "true runs then", holds: true, withElse: true, wantThen: 1},
		{name: "false runs else", holds: false, withElse: true, wantElse: 1},
		{name: "false without else", holds: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			then := newStub("then", Complete)
			var elseNode Node
			var els *stubNode
			if tt.withElse {
				els = newStub("else", Complete)
				elseNode = els
			}
			c := NewConditional("if", &stubCond{holds: tt.holds}, then, elseNode)

			if st := c.Execute(testContext()); st != Complete {
				t.Errorf("Execute = %v, want complete", st)
			}
			if then.total != tt.wantThen {
				t.Errorf("then executed %d times, want %d", then.total, tt.wantThen)
			}
			if els != nil && els.total != tt.wantElse {
				t.Errorf("else executed %d times, want %d", els.total, tt.wantElse)
			}
		})
	}
}

// ─── Tree Edits ─────────────────────────────────────────────────────────────

func TestComposite_InsertBeforeActiveKeepsIt(t *testing.T) {
	a := newStub("a", Continue)
	seq := NewSequence("seq", a)
	ctx := testContext()
	seq.Execute(ctx)

	if err := seq.InsertChild(0, newStub("x")); err != nil {
		t.Fatalf("InsertChild: %v", err)
	}
	if seq.Active() != a {
		t.Fatal("active child lost after insert")
	}
	seq.Execute(ctx)
	if a.total != 2 {
		t.Errorf("active child executed %d times, want 2", a.total)
	}
}

func TestComposite_RemoveActiveReturnsToIdle(t *testing.T) {
	a := newStub("a", Continue)
	b := newStub("b", Continue)
	seq := NewSequence("seq", a, b)
	ctx := testContext()
	seq.Execute(ctx)

	if !seq.RemoveChild(a) {
		t.Fatal("RemoveChild = false")
	}
	if seq.Active() != nil {
		t.Error("removed child still active")
	}
	if seq.State() != StateIdle {
		t.Errorf("State() = %v, want idle", seq.State())
	}
	if Parent(a) != nil {
		t.Error("removed child keeps its parent")
	}

	seq.Execute(ctx)
	if seq.Active() != b || b.total != 1 {
		t.Error("sequence did not restart from its first remaining child")
	}
}

func TestComposite_MoveActiveTracksIndex(t *testing.T) {
	a := newStub("a", Continue, Complete)
	b := newStub("b", Complete)
	c := newStub("c", Continue)
	seq := NewSequence("seq", a, b, c)
	ctx := testContext()
	seq.Execute(ctx)

	// a moves to the end, so nothing follows it.
	if err := seq.MoveChild(0, 2); err != nil {
		t.Fatalf("MoveChild: %v", err)
	}
	if st := seq.Execute(ctx); st != Complete {
		t.Errorf("Execute = %v, want complete after last child", st)
	}
	if b.total != 0 || c.total != 0 {
		t.Error("children before the moved active child were run")
	}
}

func TestComposite_InsertErrors(t *testing.T) {
	a := newStub("a")
	inner := NewSequence("inner", a)
	outer := NewSequence("outer", inner)

	if err := outer.AddChild(a); !errors.Is(err, ErrAttached) {
		t.Errorf("adding attached node: err = %v, want ErrAttached", err)
	}
	detached := NewSequence("detached")
	if err := detached.InsertChild(1, newStub("b")); !errors.Is(err, ErrInvalidMacro) {
		t.Errorf("out of range insert: err = %v, want ErrInvalidMacro", err)
	}
	if err := detached.AddChild(nil); !errors.Is(err, ErrInvalidMacro) {
		t.Errorf("nil child: err = %v, want ErrInvalidMacro", err)
	}
}

func TestComposite_RejectsCycle(t *testing.T) {
	inner := NewSequence("inner")
	outer := NewSequence("outer", inner)
	if err := inner.AddChild(outer); !errors.Is(err, ErrCycle) {
		t.Errorf("err = %v, want ErrCycle", err)
	}
}

// ─── Abort / Reset ──────────────────────────────────────────────────────────

func TestComposite_AbortAndReset(t *testing.T) {
	a := newStub("a", Continue)
	seq := NewSequence("seq", a)
	ctx := testContext()
	seq.Execute(ctx)

	seq.Abort()
	if seq.State() != StateAborted {
		t.Fatalf("State() = %v, want aborted", seq.State())
	}
	if st := seq.Execute(ctx); st != Failed {
		t.Errorf("Execute after abort = %v, want failed", st)
	}
	if a.total != 1 {
		t.Error("aborted composite executed its child")
	}

	seq.Reset()
	if seq.State() != StateIdle || seq.Active() != nil {
		t.Fatal("Reset did not return to idle")
	}
	if st := seq.Execute(ctx); st != Continue {
		t.Errorf("Execute after reset = %v, want continue", st)
	}
}

func TestComposite_Validate(t *testing.T) {
	tests := []struct {
		name    string
		node    *Composite
		wantErr bool
	}{
		{name: "sequence", node: NewSequence("s")},
		{name: "loop count", node: NewLoop("l", 3)},
		{name: "negative count", node: NewLoop("l", -1), wantErr: true},
		{name: "count on sequence", node: func() *Composite { c := NewSequence("s"); c.cfg.Count = 2; return c }(), wantErr: true},
		{name: "conditional", node: NewConditional("c", &stubCond{}, newStub("a"), nil)},
		{name: "conditional without condition", node: NewConditional("c", nil, newStub("a"), nil), wantErr: true},
		{name: "conditional with three children", node: func() *Composite {
			c := NewConditional("c", &stubCond{}, newStub("a"), newStub("b"))
			_ = c.AddChild(newStub("x"))
			return c
		}(), wantErr: true},
		{name: "condition on choice", node: func() *Composite { c := NewChoice("c"); c.cond = &stubCond{}; return c }(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
