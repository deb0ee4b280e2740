package macro

// Node is an element of a macro tree.
//
// Execute is called at most once per tick and must not block. Composites
// execute exactly one child per call, so each tick runs a single path from
// the root to one leaf.
type Node interface {
	// Kind is the registered type tag used in persisted records.
	Kind() string
	Name() string
	SetName(name string)
	State() State

	// Guard is the condition a choice parent evaluates to pick this node.
	// Nil means the node is always eligible.
	Guard() Condition
	SetGuard(c Condition)

	Execute(ctx *Context) Status
	// Reset returns the node and its subtree to Idle.
	Reset()

	base() *nodeBase
	params() any
}

// Activation describes a node that has just become active.
type Activation struct {
	// Path holds the names from the root's child down to Node.
	Path []string
	Node Node
}

// parentNode receives activation notices from its children.
type parentNode interface {
	Node
	childActivated(from Node, a Activation)
}

// container is implemented by nodes that own children.
type container interface {
	Children() []Node
	AddChild(n Node) error
}

// conditioned is implemented by nodes configured with a condition.
type conditioned interface {
	condition() Condition
	setCondition(c Condition)
}

// validator is implemented by nodes whose parameters need checking after
// decoding.
type validator interface {
	validate() error
}

// nodeBase holds the fields every node shares.
type nodeBase struct {
	name   string
	state  State
	guard  Condition
	parent parentNode
}

func newBase(name string) nodeBase {
	return nodeBase{name: name, state: StateIdle}
}

func (b *nodeBase) Name() string         { return b.name }
func (b *nodeBase) SetName(name string)  { b.name = name }
func (b *nodeBase) State() State         { return b.state }
func (b *nodeBase) Guard() Condition     { return b.guard }
func (b *nodeBase) SetGuard(c Condition) { b.guard = c }
func (b *nodeBase) base() *nodeBase      { return b }

// Parent returns the composite or macro that owns n, or nil for a root.
func Parent(n Node) Node {
	if p := n.base().parent; p != nil {
		return p
	}
	return nil
}

// run executes n for one tick and keeps its lifecycle state current.
func run(n Node, ctx *Context) Status {
	b := n.base()
	if b.state == StateIdle {
		b.state = StateRunning
	}
	st := n.Execute(ctx)
	if st != Continue && b.state == StateRunning {
		b.state = StateDone
	}
	return st
}

// Walk calls fn for n and every node below it, depth first. Returning false
// from fn skips that node's children.
func Walk(n Node, fn func(n Node, depth int) bool) {
	walk(n, 0, fn)
}

func walk(n Node, depth int, fn func(Node, int) bool) {
	if !fn(n, depth) {
		return
	}
	if c, ok := n.(container); ok {
		for _, child := range c.Children() {
			walk(child, depth+1, fn)
		}
	}
}

// CountNodes returns the number of nodes in the subtree rooted at n.
func CountNodes(n Node) int {
	count := 0
	Walk(n, func(Node, int) bool {
		count++
		return true
	})
	return count
}
