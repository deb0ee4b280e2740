package macro

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/macro-autopilot/internal/geo"
)

// Record is the persisted form of a node and its subtree.
//
// Params holds the node's kind-specific settings. Guard is the choice guard
// on the node; Condition configures conditional, check and wait_until nodes
// and the operands of a logic condition are its Children.
type Record struct {
	Type      string         `json:"type" yaml:"type"`
	Name      string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Guard     *Record        `json:"guard,omitempty" yaml:"guard,omitempty"`
	Condition *Record        `json:"condition,omitempty" yaml:"condition,omitempty"`
	Children  []Record       `json:"children,omitempty" yaml:"children,omitempty"`
}

var (
	nodeKinds = map[string]func() Node{
		KindMacro:                 func() Node { return New("") },
		string(PolicySequence):    func() Node { return newComposite(PolicySequence, "Sequence") },
		string(PolicyChoice):      func() Node { return newComposite(PolicyChoice, "Choice") },
		string(PolicyLoop):        func() Node { return newComposite(PolicyLoop, "Loop") },
		string(PolicyConditional): func() Node { return newComposite(PolicyConditional, "If") },
		KindSetThrottle:           func() Node { return NewSetThrottle(0) },
		KindToggleGroup:           func() Node { return NewToggleActionGroup("") },
		KindWait:                  func() Node { return NewWait(0) },
		KindWaitUntil:             func() Node { return NewWaitUntil(nil, 0) },
		KindCheck:                 func() Node { return NewCheck(nil) },
		KindRotateToBearing: func() Node {
			n := NewRotateToBearing(geo.Waypoint{})
			n.name = "Rotate to bearing"
			return n
		},
		KindHoldAttitude: func() Node { return NewHoldAttitude(defaultEpsilonDeg) },
		KindFlyToWaypoint: func() Node {
			n := NewFlyToWaypoint(geo.Waypoint{})
			n.name = "Fly to waypoint"
			return n
		},
	}

	conditionKinds = map[string]func() Condition{
		CondAltitudeAbove: func() Condition { return AltitudeAbove(0) },
		CondAltitudeBelow: func() Condition { return AltitudeBelow(0) },
		CondSpeedBelow:    func() Condition { return SpeedBelow(0) },
		CondResourceAbove: func() Condition { return ResourceAbove("", 0) },
		CondActionGroup:   func() Condition { return ActionGroupIs("", false) },
		CondDistanceBelow: func() Condition { return DistanceBelow(geo.Waypoint{}, 0) },
		CondNot:           func() Condition { return &logicCond{kind: CondNot} },
		CondAll:           func() Condition { return &logicCond{kind: CondAll} },
		CondAny:           func() Condition { return &logicCond{kind: CondAny} },
	}
)

// Kinds returns the registered node kinds in sorted order.
func Kinds() []string {
	return sortedKeys(nodeKinds)
}

// ConditionKinds returns the registered condition kinds in sorted order.
func ConditionKinds() []string {
	return sortedKeys(conditionKinds)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─── Encoding ───────────────────────────────────────────────────────────────

// Encode converts a node subtree to its record form.
func Encode(n Node) (Record, error) {
	rec := Record{Type: n.Kind(), Name: n.Name()}

	if p := n.params(); p != nil {
		m, err := encodeParams(p)
		if err != nil {
			return Record{}, fmt.Errorf("encoding %s %q: %w", n.Kind(), n.Name(), err)
		}
		rec.Params = m
	}
	if g := n.Guard(); g != nil {
		gr, err := EncodeCondition(g)
		if err != nil {
			return Record{}, err
		}
		rec.Guard = &gr
	}
	if c, ok := n.(conditioned); ok && c.condition() != nil {
		cr, err := EncodeCondition(c.condition())
		if err != nil {
			return Record{}, err
		}
		rec.Condition = &cr
	}
	if c, ok := n.(container); ok {
		for _, child := range c.Children() {
			cr, err := Encode(child)
			if err != nil {
				return Record{}, err
			}
			rec.Children = append(rec.Children, cr)
		}
	}
	return rec, nil
}

// EncodeCondition converts a condition to its record form.
func EncodeCondition(c Condition) (Record, error) {
	if c == nil {
		return Record{}, fmt.Errorf("%w: missing condition", ErrInvalidParams)
	}
	rec := Record{Type: c.Kind()}
	if p := c.params(); p != nil {
		m, err := encodeParams(p)
		if err != nil {
			return Record{}, fmt.Errorf("encoding condition %s: %w", c.Kind(), err)
		}
		rec.Params = m
	}
	if cc, ok := c.(compound); ok {
		for _, op := range cc.operands() {
			or, err := EncodeCondition(op)
			if err != nil {
				return Record{}, err
			}
			rec.Children = append(rec.Children, or)
		}
	}
	return rec, nil
}

// encodeParams turns a params struct into a generic map through YAML so the
// struct's yaml tags define the persisted field names.
func encodeParams(p any) (map[string]any, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

// ─── Decoding ───────────────────────────────────────────────────────────────

// Decode builds a node subtree from a record.
//
// Children that cannot be decoded are skipped; the rest of the tree still
// loads. In that case both the node and a non-nil error are returned. The
// error joins one *LoadError per skipped record. If the root record itself
// is invalid the node is nil.
func Decode(rec Record) (Node, error) {
	return decodeNode(rec, rootPath(rec))
}

// DecodeMacro decodes a record whose root must be a macro.
// Like Decode it may return a partially loaded macro with an error.
func DecodeMacro(rec Record) (*Macro, error) {
	if rec.Type != KindMacro {
		return nil, fmt.Errorf("%w: got %q", ErrNotMacro, rec.Type)
	}
	n, err := Decode(rec)
	if n == nil {
		return nil, err
	}
	return n.(*Macro), err
}

func rootPath(rec Record) string {
	if rec.Name != "" {
		return rec.Name
	}
	return rec.Type
}

func decodeNode(rec Record, path string) (Node, error) {
	factory, ok := nodeKinds[rec.Type]
	if !ok {
		return nil, &LoadError{Path: path, Kind: rec.Type, Err: ErrUnknownKind}
	}
	n := factory()
	if rec.Name != "" {
		n.SetName(rec.Name)
	}
	fail := func(err error) (Node, error) {
		return nil, &LoadError{Path: path, Kind: rec.Type, Err: err}
	}

	if err := decodeParams(rec.Params, n.params()); err != nil {
		return fail(err)
	}
	if rec.Guard != nil {
		g, err := DecodeCondition(*rec.Guard)
		if err != nil {
			return fail(err)
		}
		n.SetGuard(g)
	}
	if rec.Condition != nil {
		c, ok := n.(conditioned)
		if !ok {
			return fail(fmt.Errorf("%w: %s takes no condition", ErrInvalidParams, rec.Type))
		}
		cond, err := DecodeCondition(*rec.Condition)
		if err != nil {
			return fail(err)
		}
		c.setCondition(cond)
	}

	var skipped []error
	if c, ok := n.(container); ok {
		// Conditional branches are positional: dropping the then-branch
		// would promote the else-branch, so the whole node is dropped.
		positional := n.Kind() == string(PolicyConditional)
		for i, cr := range rec.Children {
			childPath := path + "/" + strconv.Itoa(i)
			child, err := decodeNode(cr, childPath)
			if child != nil {
				if err != nil {
					skipped = append(skipped, err)
				}
				addErr := c.AddChild(child)
				if addErr == nil {
					continue
				}
				err = &LoadError{Path: childPath, Kind: cr.Type, Err: addErr}
			}
			skipped = append(skipped, err)
			if positional {
				skipped = append(skipped, &LoadError{
					Path: path,
					Kind: rec.Type,
					Err:  fmt.Errorf("%w: branch %d could not be loaded", ErrInvalidMacro, i),
				})
				return nil, errors.Join(skipped...)
			}
		}
	} else if len(rec.Children) > 0 {
		return fail(fmt.Errorf("%w: %s takes no children", ErrInvalidParams, rec.Type))
	}

	if v, ok := n.(validator); ok {
		if err := v.validate(); err != nil {
			return fail(err)
		}
	}
	return n, errors.Join(skipped...)
}

// DecodeCondition builds a condition from a record. Unlike nodes, a
// condition with any invalid part fails as a whole.
func DecodeCondition(rec Record) (Condition, error) {
	factory, ok := conditionKinds[rec.Type]
	if !ok {
		return nil, fmt.Errorf("%w: condition %q", ErrUnknownKind, rec.Type)
	}
	c := factory()
	if err := decodeParams(rec.Params, c.params()); err != nil {
		return nil, fmt.Errorf("condition %s: %w", rec.Type, err)
	}
	if cc, ok := c.(compound); ok {
		for _, or := range rec.Children {
			op, err := DecodeCondition(or)
			if err != nil {
				return nil, err
			}
			cc.addOperand(op)
		}
	} else if len(rec.Children) > 0 {
		return nil, fmt.Errorf("%w: condition %s takes no operands", ErrInvalidParams, rec.Type)
	}
	if v, ok := c.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("condition %s: %w", rec.Type, err)
		}
	}
	return c, nil
}

// decodeParams fills the params struct dst from m. Unknown fields are errors.
func decodeParams(m map[string]any, dst any) error {
	if len(m) == 0 {
		return nil
	}
	if dst == nil {
		return fmt.Errorf("%w: no parameters expected", ErrInvalidParams)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// ─── Copying ────────────────────────────────────────────────────────────────

// Copy returns an independent deep copy of n's persisted state. Runtime
// state (active child, controller integrals, timers) is not copied; the
// copy starts Idle and detached from any parent.
func Copy(n Node) (Node, error) {
	rec, err := Encode(n)
	if err != nil {
		return nil, err
	}
	return Decode(rec)
}

// CopyMacro is Copy for a macro root.
func CopyMacro(m *Macro) (*Macro, error) {
	rec, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return DecodeMacro(rec)
}

// DeepCopy returns an independent copy of the record.
func (r Record) DeepCopy() Record {
	cpy := r
	cpy.Params = deepCopyMap(r.Params)
	if r.Guard != nil {
		g := r.Guard.DeepCopy()
		cpy.Guard = &g
	}
	if r.Condition != nil {
		c := r.Condition.DeepCopy()
		cpy.Condition = &c
	}
	if r.Children != nil {
		cpy.Children = make([]Record, len(r.Children))
		for i, ch := range r.Children {
			cpy.Children[i] = ch.DeepCopy()
		}
	}
	return cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
