package macro

import (
	"fmt"
	"slices"
)

// Policy decides which child of a composite runs.
type Policy string

const (
	// PolicySequence runs children in order and completes after the last.
	PolicySequence Policy = "sequence"
	// PolicyChoice runs the first child whose guard holds, then completes.
	PolicyChoice Policy = "choice"
	// PolicyLoop runs children in order, repeating Count times (0 = forever).
	PolicyLoop Policy = "loop"
	// PolicyConditional runs the first child if its condition holds,
	// otherwise the second child if present.
	PolicyConditional Policy = "conditional"
)

type compositeParams struct {
	// ContinueOnError skips a failed child instead of failing the composite.
	// The default is fail-fast.
	ContinueOnError bool `yaml:"continue_on_error,omitempty"`
	Count           int  `yaml:"count,omitempty"`
}

// Composite is a node that owns an ordered list of children and keeps at
// most one of them active.
//
// The active child is tracked by index and identity. Every execution and
// every structural edit re-validates it: if the child moved, the index is
// updated; if it was removed, the composite returns to Idle.
type Composite struct {
	nodeBase
	policy Policy
	cfg    compositeParams
	cond   Condition

	children  []Node
	active    Node
	activeIdx int
	iteration int
	result    Status
}

func newComposite(policy Policy, name string) *Composite {
	return &Composite{nodeBase: newBase(name), policy: policy, activeIdx: -1}
}

// NewSequence creates a sequence with the given children.
func NewSequence(name string, children ...Node) *Composite {
	return mustAdd(newComposite(PolicySequence, name), children)
}

// NewChoice creates a choice. Each child's Guard selects it.
func NewChoice(name string, children ...Node) *Composite {
	return mustAdd(newComposite(PolicyChoice, name), children)
}

// NewLoop creates a loop that repeats its children count times, or forever
// when count is 0.
func NewLoop(name string, count int, children ...Node) *Composite {
	c := newComposite(PolicyLoop, name)
	c.cfg.Count = count
	return mustAdd(c, children)
}

// NewConditional creates an if/then/else node. elseNode may be nil.
func NewConditional(name string, cond Condition, then, elseNode Node) *Composite {
	c := newComposite(PolicyConditional, name)
	c.cond = cond
	children := []Node{then}
	if elseNode != nil {
		children = append(children, elseNode)
	}
	return mustAdd(c, children)
}

func mustAdd(c *Composite, children []Node) *Composite {
	for _, ch := range children {
		if err := c.AddChild(ch); err != nil {
			panic(fmt.Sprintf("macro: building %s %q: %v", c.policy, c.name, err))
		}
	}
	return c
}

// Kind implements Node.
func (c *Composite) Kind() string { return string(c.policy) }

// Policy returns the activation policy.
func (c *Composite) Policy() Policy { return c.policy }

func (c *Composite) params() any { return &c.cfg }

func (c *Composite) condition() Condition { return c.cond }

func (c *Composite) setCondition(cond Condition) { c.cond = cond }

// ContinueOnError reports whether failed children are skipped.
func (c *Composite) ContinueOnError() bool { return c.cfg.ContinueOnError }

// SetContinueOnError sets the failure policy.
func (c *Composite) SetContinueOnError(v bool) { c.cfg.ContinueOnError = v }

// Active returns the active child, or nil.
func (c *Composite) Active() Node {
	c.revalidate()
	return c.active
}

// Children returns a copy of the child list.
func (c *Composite) Children() []Node {
	return slices.Clone(c.children)
}

// AddChild appends n.
func (c *Composite) AddChild(n Node) error {
	return c.InsertChild(len(c.children), n)
}

// InsertChild inserts n at index i.
func (c *Composite) InsertChild(i int, n Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil child", ErrInvalidMacro)
	}
	if i < 0 || i > len(c.children) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidMacro, i)
	}
	if n.base().parent != nil {
		return ErrAttached
	}
	for p := Node(c); p != nil; p = Parent(p) {
		if p == n {
			return ErrCycle
		}
	}
	c.children = slices.Insert(c.children, i, n)
	n.base().parent = c
	c.revalidate()
	return nil
}

// RemoveChild detaches n by identity. It reports whether n was a child.
func (c *Composite) RemoveChild(n Node) bool {
	i := slices.IndexFunc(c.children, func(ch Node) bool { return ch == n })
	if i < 0 {
		return false
	}
	c.children = slices.Delete(c.children, i, i+1)
	n.base().parent = nil
	c.revalidate()
	return true
}

// MoveChild moves the child at index from to index to.
func (c *Composite) MoveChild(from, to int) error {
	if from < 0 || from >= len(c.children) || to < 0 || to >= len(c.children) {
		return fmt.Errorf("%w: move %d -> %d out of range", ErrInvalidMacro, from, to)
	}
	n := c.children[from]
	c.children = slices.Delete(c.children, from, from+1)
	c.children = slices.Insert(c.children, to, n)
	c.revalidate()
	return nil
}

// Execute implements Node.
func (c *Composite) Execute(ctx *Context) Status {
	switch c.state {
	case StateDone:
		return c.result
	case StateAborted:
		return Failed
	}

	c.revalidate()
	if c.active == nil {
		i := c.first(ctx)
		if i < 0 {
			return c.finish(Complete)
		}
		c.activate(i)
	}
	c.state = StateRunning

	st := run(c.active, ctx)
	switch st {
	case Continue:
		return Continue
	case Failed:
		if !c.cfg.ContinueOnError {
			ctx.log().Warn("child failed, stopping",
				"node", c.name, "child", c.active.Name(), "kind", c.active.Kind())
			return c.finish(Failed)
		}
		ctx.log().Info("child failed, skipping",
			"node", c.name, "child", c.active.Name(), "kind", c.active.Kind())
	}

	i := c.next()
	if i < 0 {
		return c.finish(Complete)
	}
	c.activate(i)
	return Continue
}

// first picks the child to start with, or -1 if there is nothing to run.
func (c *Composite) first(ctx *Context) int {
	switch c.policy {
	case PolicyChoice:
		for i, ch := range c.children {
			if g := ch.Guard(); g == nil || g.Holds(ctx) {
				return i
			}
		}
		return -1
	case PolicyConditional:
		if c.cond != nil && c.cond.Holds(ctx) {
			if len(c.children) > 0 {
				return 0
			}
			return -1
		}
		if len(c.children) > 1 {
			return 1
		}
		return -1
	}
	if len(c.children) == 0 {
		return -1
	}
	return 0
}

// next picks the child to activate after the active one finished.
func (c *Composite) next() int {
	switch c.policy {
	case PolicySequence:
		if i := c.activeIdx + 1; i < len(c.children) {
			return i
		}
	case PolicyLoop:
		i := c.activeIdx + 1
		if i < len(c.children) {
			return i
		}
		c.iteration++
		if c.cfg.Count > 0 && c.iteration >= c.cfg.Count {
			return -1
		}
		if len(c.children) > 0 {
			return 0
		}
	}
	return -1
}

// activate makes child i active, resets it and announces it.
func (c *Composite) activate(i int) {
	child := c.children[i]
	child.Reset()
	c.active = child
	c.activeIdx = i
	c.announce(Activation{Path: []string{child.Name()}, Node: child})
}

func (c *Composite) announce(a Activation) {
	if c.parent != nil {
		c.parent.childActivated(c, a)
	}
}

func (c *Composite) childActivated(from Node, a Activation) {
	a.Path = append([]string{from.Name()}, a.Path...)
	c.announce(a)
}

func (c *Composite) finish(st Status) Status {
	c.state = StateDone
	c.result = st
	c.active = nil
	c.activeIdx = -1
	return st
}

// revalidate repairs the active child reference after structural edits.
func (c *Composite) revalidate() {
	if c.active == nil {
		return
	}
	if c.activeIdx >= 0 && c.activeIdx < len(c.children) && c.children[c.activeIdx] == c.active {
		return
	}
	if i := slices.IndexFunc(c.children, func(ch Node) bool { return ch == c.active }); i >= 0 {
		c.activeIdx = i
		return
	}
	c.active = nil
	c.activeIdx = -1
	c.iteration = 0
	c.state = StateIdle
}

// Reset implements Node.
func (c *Composite) Reset() {
	c.state = StateIdle
	c.active = nil
	c.activeIdx = -1
	c.iteration = 0
	c.result = Continue
	for _, ch := range c.children {
		ch.Reset()
	}
}

// Abort stops the composite, discarding in-progress child state.
func (c *Composite) Abort() {
	for _, ch := range c.children {
		ch.Reset()
	}
	c.active = nil
	c.activeIdx = -1
	c.state = StateAborted
}

func (c *Composite) validate() error {
	if c.cfg.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalidParams)
	}
	if c.policy != PolicyLoop && c.cfg.Count != 0 {
		return fmt.Errorf("%w: count only applies to loops", ErrInvalidParams)
	}
	if c.policy != PolicyConditional && c.cond != nil {
		return fmt.Errorf("%w: only conditionals take a condition", ErrInvalidParams)
	}
	if c.policy == PolicyConditional {
		if c.cond == nil {
			return fmt.Errorf("%w: conditional needs a condition", ErrInvalidParams)
		}
		if len(c.children) > 2 {
			return fmt.Errorf("%w: conditional takes at most two children", ErrInvalidParams)
		}
	}
	return nil
}
