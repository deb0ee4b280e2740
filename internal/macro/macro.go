package macro

import (
	"fmt"
	"slices"
)

// KindMacro is the record tag of a macro root.
const KindMacro = "macro"

// Macro is the root of a macro tree. Its children run in sequence.
//
// A Macro is itself a Node, so a macro can be nested inside another one.
// Observers registered with OnActivate are told whenever any node in the
// tree becomes active.
type Macro struct {
	nodeBase
	block *Composite

	// Edit marks the macro as open for editing in a user interface. It is
	// not persisted.
	Edit bool

	activeNode Node
	activePath []string
	observers  []func(Activation)
}

// New creates an empty macro.
func New(name string, children ...Node) *Macro {
	m := &Macro{nodeBase: newBase(name)}
	m.block = newComposite(PolicySequence, name)
	m.block.parent = m
	for _, ch := range children {
		if err := m.AddChild(ch); err != nil {
			panic(fmt.Sprintf("macro: building %q: %v", name, err))
		}
	}
	return m
}

// Kind implements Node.
func (m *Macro) Kind() string { return KindMacro }

// SetName implements Node.
func (m *Macro) SetName(name string) {
	m.name = name
	m.block.name = name
}

func (m *Macro) params() any { return &m.block.cfg }

// ContinueOnError reports whether failed top-level children are skipped.
func (m *Macro) ContinueOnError() bool { return m.block.ContinueOnError() }

// SetContinueOnError sets the failure policy for top-level children.
func (m *Macro) SetContinueOnError(v bool) { m.block.SetContinueOnError(v) }

// Title returns the display title: the name, followed by the active node's
// name in brackets while one is active.
func (m *Macro) Title() string {
	active := m.ActiveNode()
	if active == nil {
		return m.name
	}
	return fmt.Sprintf("%s [%s]", m.name, active.Name())
}

// ActiveNode returns the most recently activated node, or nil if none is
// active or it has since been removed from the tree.
func (m *Macro) ActiveNode() Node {
	m.dropStaleActive()
	return m.activeNode
}

// ActivePath returns the names leading to the active node.
func (m *Macro) ActivePath() []string {
	m.dropStaleActive()
	return slices.Clone(m.activePath)
}

// OnActivate registers fn to be called whenever a node becomes active.
func (m *Macro) OnActivate(fn func(Activation)) {
	m.observers = append(m.observers, fn)
}

// ClearObservers removes every activation observer.
func (m *Macro) ClearObservers() {
	m.observers = nil
}

// Children returns the top-level children.
func (m *Macro) Children() []Node { return m.block.Children() }

// AddChild appends a top-level child.
func (m *Macro) AddChild(n Node) error {
	if n == Node(m) {
		return ErrCycle
	}
	return m.block.AddChild(n)
}

// InsertChild inserts a top-level child at index i.
func (m *Macro) InsertChild(i int, n Node) error {
	if n == Node(m) {
		return ErrCycle
	}
	return m.block.InsertChild(i, n)
}

// RemoveChild detaches a top-level child by identity.
func (m *Macro) RemoveChild(n Node) bool {
	return m.block.RemoveChild(n)
}

// MoveChild reorders top-level children.
func (m *Macro) MoveChild(from, to int) error {
	return m.block.MoveChild(from, to)
}

// Execute implements Node.
func (m *Macro) Execute(ctx *Context) Status {
	st := run(m.block, ctx)
	m.state = m.block.state
	if m.state.Terminal() || m.state == StateIdle {
		m.activeNode = nil
		m.activePath = nil
	}
	return st
}

// Reset implements Node.
func (m *Macro) Reset() {
	m.block.Reset()
	m.state = StateIdle
	m.activeNode = nil
	m.activePath = nil
}

// Abort stops the macro. A later Reset makes it runnable again.
func (m *Macro) Abort() {
	m.block.Abort()
	m.state = StateAborted
	m.activeNode = nil
	m.activePath = nil
}

func (m *Macro) childActivated(_ Node, a Activation) {
	m.activeNode = a.Node
	m.activePath = a.Path
	for _, fn := range m.observers {
		fn(a)
	}
	if m.parent != nil {
		m.parent.childActivated(m, a)
	}
}

// dropStaleActive clears the active node if it is no longer in the tree.
func (m *Macro) dropStaleActive() {
	if m.activeNode == nil {
		return
	}
	for p := m.activeNode; p != nil; p = Parent(p) {
		if p == Node(m) {
			return
		}
	}
	m.activeNode = nil
	m.activePath = nil
}
