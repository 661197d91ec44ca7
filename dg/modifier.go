package dg

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Modifier queues graph edits and applies them as one unit. If any edit fails, the edits already
// applied by that DoIt are reverted in reverse order. A successful DoIt can be reverted with UndoIt
// and re-applied with DoIt.
type Modifier struct {
	g        *Graph
	ops      []modOp
	applied  int
	reserved map[string]bool
}

type modOp interface {
	apply(g *Graph) error
	revert(g *Graph) error
	fmt.Stringer
}

// NewModifier returns an empty modifier bound to g.
func (g *Graph) NewModifier() *Modifier {
	return &Modifier{g: g, reserved: map[string]bool{}}
}

// CreateNode queues the creation of a node and returns the name it will have. The name is made
// unique against both the graph and earlier queued creations.
func (m *Modifier) CreateNode(typeName, name string) (string, error) {
	if _, ok := LookupNodeType(typeName); !ok {
		return "", errors.Errorf("unknown node type %q", typeName)
	}
	m.g.mu.Lock()
	if name == "" {
		name = m.g.uniqueName(typeName, m.reserved)
	} else if _, taken := m.g.nodes[name]; taken || m.reserved[name] {
		name = m.g.uniqueName(name, m.reserved)
	}
	m.g.mu.Unlock()
	m.reserved[name] = true
	m.ops = append(m.ops, &createOp{typeName: typeName, name: name})
	return name, nil
}

// DeleteNode queues the deletion of a node along with its connections.
func (m *Modifier) DeleteNode(name string) {
	m.ops = append(m.ops, &deleteOp{name: name})
}

// Connect queues a connection.
func (m *Modifier) Connect(src, dst Plug) {
	m.ops = append(m.ops, &connectOp{src: src, dst: dst})
}

// Disconnect queues the removal of a connection.
func (m *Modifier) Disconnect(src, dst Plug) {
	m.ops = append(m.ops, &disconnectOp{src: src, dst: dst})
}

// SetValue queues a value write.
func (m *Modifier) SetValue(p Plug, value interface{}) {
	m.ops = append(m.ops, &setOp{plug: p, value: value})
}

// Len returns the number of queued edits.
func (m *Modifier) Len() int {
	return len(m.ops)
}

// Edits describes the queued edits, in order.
func (m *Modifier) Edits() []string {
	out := make([]string, 0, len(m.ops))
	for _, op := range m.ops {
		out = append(out, op.String())
	}
	return out
}

// DoIt applies every queued edit not yet applied.
func (m *Modifier) DoIt() error {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	start := m.applied
	for m.applied < len(m.ops) {
		op := m.ops[m.applied]
		if err := op.apply(m.g); err != nil {
			err = errors.Wrapf(err, "applying %s", op)
			for m.applied > start {
				m.applied--
				undo := m.ops[m.applied]
				if rerr := undo.revert(m.g); rerr != nil {
					err = multierr.Combine(err, errors.Wrapf(rerr, "reverting %s", undo))
				}
			}
			return err
		}
		m.applied++
	}
	return nil
}

// UndoIt reverts every applied edit in reverse order. Revert failures do not stop the remaining
// reverts; they are combined into the returned error.
func (m *Modifier) UndoIt() error {
	m.g.mu.Lock()
	defer m.g.mu.Unlock()
	var err error
	for m.applied > 0 {
		m.applied--
		op := m.ops[m.applied]
		if rerr := op.revert(m.g); rerr != nil {
			err = multierr.Combine(err, errors.Wrapf(rerr, "reverting %s", op))
		}
	}
	return err
}

type createOp struct {
	typeName string
	name     string
}

func (op *createOp) apply(g *Graph) error {
	_, err := g.createNode(op.typeName, op.name)
	return err
}

func (op *createOp) revert(g *Graph) error {
	return g.deleteNode(op.name)
}

func (op *createOp) String() string {
	return fmt.Sprintf("create %s %q", op.typeName, op.name)
}

type deleteOp struct {
	name string
	snap *nodeSnapshot
}

func (op *deleteOp) apply(g *Graph) error {
	snap, err := g.snapshot(op.name)
	if err != nil {
		return err
	}
	if err := g.deleteNode(op.name); err != nil {
		return err
	}
	op.snap = snap
	return nil
}

func (op *deleteOp) revert(g *Graph) error {
	if op.snap == nil {
		return nil
	}
	return g.restore(op.snap)
}

func (op *deleteOp) String() string {
	return fmt.Sprintf("delete %q", op.name)
}

type connectOp struct {
	src, dst Plug
	prev     interface{}
}

func (op *connectOp) apply(g *Graph) error {
	d, err := g.resolve(op.dst)
	if err != nil {
		return err
	}
	prev := g.storedValue(d)
	if err := g.connect(op.src, op.dst); err != nil {
		return err
	}
	op.prev = prev
	return nil
}

// revert disconnects and puts back the value the destination held before the connection.
func (op *connectOp) revert(g *Graph) error {
	if err := g.disconnectPlugs(op.src, op.dst); err != nil {
		return err
	}
	if op.prev == nil {
		return nil
	}
	d, err := g.resolve(op.dst)
	if err != nil {
		return err
	}
	return g.setValue(d, op.prev)
}

func (op *connectOp) String() string {
	return fmt.Sprintf("connect %s -> %s", op.src, op.dst)
}

type disconnectOp struct {
	src, dst Plug
}

func (op *disconnectOp) apply(g *Graph) error {
	return g.disconnectPlugs(op.src, op.dst)
}

func (op *disconnectOp) revert(g *Graph) error {
	return g.connect(op.src, op.dst)
}

func (op *disconnectOp) String() string {
	return fmt.Sprintf("disconnect %s -> %s", op.src, op.dst)
}

type setOp struct {
	plug  Plug
	value interface{}
	prev  interface{}
}

func (op *setOp) apply(g *Graph) error {
	r, err := g.resolve(op.plug)
	if err != nil {
		return err
	}
	prev := g.storedValue(r)
	if err := g.setValue(r, op.value); err != nil {
		return err
	}
	op.prev = prev
	return nil
}

func (op *setOp) revert(g *Graph) error {
	r, err := g.resolve(op.plug)
	if err != nil {
		return err
	}
	return g.setValue(r, op.prev)
}

func (op *setOp) String() string {
	return fmt.Sprintf("set %s = %v", op.plug, op.value)
}

// nodeSnapshot is everything needed to bring a deleted node back.
type nodeSnapshot struct {
	entry    *nodeEntry
	values   map[string]interface{}
	conns    []connection
	parent   string
	children []string
}

func (g *Graph) snapshot(name string) (*nodeSnapshot, error) {
	e, ok := g.nodes[name]
	if !ok {
		return nil, NewNodeNotFoundError(name)
	}
	// Settle inputs so the restored node starts from the values it had when deleted.
	for _, c := range g.connectionsOf(name) {
		if c.dst.node == name && e.dirty[c.dst.attr] {
			if _, err := g.pull(c.dst); err != nil {
				g.logger.Debugw("could not settle plug before snapshot", "plug", c.dst.plug().String(), "error", err)
			}
		}
	}
	snap := &nodeSnapshot{
		entry:  e,
		values: map[string]interface{}{},
		conns:  g.connectionsOf(name),
		parent: g.parents[name],
	}
	for k, v := range e.values {
		snap.values[k] = v
	}
	for child, parent := range g.parents {
		if parent == name {
			snap.children = append(snap.children, child)
		}
	}
	return snap, nil
}

func (g *Graph) restore(snap *nodeSnapshot) error {
	name := snap.entry.name
	if _, ok := g.nodes[name]; ok {
		return errors.Errorf("cannot restore %q, name is in use", name)
	}
	e := snap.entry
	e.values = map[string]interface{}{}
	for k, v := range snap.values {
		e.values[k] = v
	}
	e.dirty = map[string]bool{}
	for _, a := range e.schema.attrs {
		if e.schema.computed(a.Name) {
			e.dirty[a.Name] = true
		}
	}
	g.nodes[name] = e

	var err error
	for _, c := range snap.conns {
		err = multierr.Combine(err, g.connect(c.src.plug(), c.dst.plug()))
	}
	if snap.parent != "" {
		g.parents[name] = snap.parent
	}
	for _, child := range snap.children {
		g.parents[child] = name
	}
	g.logger.Debugw("restored node", "name", name)
	return err
}
