// Package dg implements an in-memory dependency graph host: typed node attributes, data-flow
// connections, dirty propagation and lazy, pull-based evaluation.
//
// Nodes declare a static Schema of attributes and the input->output edges that a change must
// dirty. Setting a value or connecting a plug marks everything downstream dirty; nothing is
// recomputed until a dirty plug is requested with Get, at which point the owning node's Compute is
// called with a DataBlock for reading its inputs and writing its outputs.
package dg

import (
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"

	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/spatialmath"
)

type nodeEntry struct {
	id       uuid.UUID
	name     string
	typeName string
	node     Node
	schema   *Schema
	values   map[string]interface{}
	dirty    map[string]bool
	logger   logging.Logger
}

// Graph holds nodes and connections. All methods are safe to call from multiple goroutines, but
// evaluation itself is serialized: only one Compute runs at a time per graph.
type Graph struct {
	mu sync.Mutex

	logger      logging.Logger
	nodes       map[string]*nodeEntry
	conns       []connection
	parents     map[string]string
	selection   []string
	currentTime float64
}

// DefaultTimeNode is the name of the time node every graph is created with.
const DefaultTimeNode = "time1"

// NewGraph returns a graph containing a single time node.
func NewGraph(logger logging.Logger) *Graph {
	g := &Graph{
		logger:      logger,
		nodes:       map[string]*nodeEntry{},
		parents:     map[string]string{},
		currentTime: 1,
	}
	if _, err := g.createNode(TimeTypeName, DefaultTimeNode); err != nil {
		panic(err)
	}
	if err := g.setValue(g.mustRef(DefaultTimeNode, timeOutAttr), g.currentTime); err != nil {
		panic(err)
	}
	return g
}

// Logger returns the graph's logger.
func (g *Graph) Logger() logging.Logger {
	return g.logger
}

var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// uniqueName returns base if no node uses it, otherwise base (minus trailing digits) followed by
// the lowest positive number that yields an unused name.
func (g *Graph) uniqueName(base string, reserved map[string]bool) string {
	taken := func(n string) bool {
		_, ok := g.nodes[n]
		return ok || reserved[n]
	}
	if base != "" && trailingDigits.MatchString(base) && !taken(base) {
		return base
	}
	stem := trailingDigits.ReplaceAllString(base, "")
	for i := 1; ; i++ {
		candidate := stem + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

// CreateNode creates a node of a registered type. An empty name picks "<type>N"; a taken name is
// made unique the same way. The name actually used is returned.
func (g *Graph) CreateNode(typeName, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if name == "" {
		name = g.uniqueName(typeName, nil)
	} else if _, ok := g.nodes[name]; ok {
		name = g.uniqueName(name, nil)
	}
	if _, err := g.createNode(typeName, name); err != nil {
		return "", err
	}
	return name, nil
}

func (g *Graph) createNode(typeName, name string) (*nodeEntry, error) {
	nt, ok := LookupNodeType(typeName)
	if !ok {
		return nil, errors.Errorf("unknown node type %q", typeName)
	}
	if name == "" {
		return nil, errors.New("node name cannot be empty")
	}
	if _, ok := g.nodes[name]; ok {
		return nil, errors.Errorf("node %q already exists", name)
	}
	e := &nodeEntry{
		id:       uuid.New(),
		name:     name,
		typeName: typeName,
		node:     nt.Creator(),
		schema:   nt.Schema,
		values:   map[string]interface{}{},
		dirty:    map[string]bool{},
		logger:   g.logger.Sublogger(name),
	}
	for _, a := range nt.Schema.attrs {
		e.values[a.Name] = a.defaultValue()
		if nt.Schema.computed(a.Name) {
			e.dirty[a.Name] = true
		}
	}
	g.nodes[name] = e
	g.logger.Debugw("created node", "name", name, "type", typeName, "id", e.id.String())
	return e, nil
}

// DeleteNode removes a node and every connection touching it. Children of a deleted transform are
// moved to the world, keeping their local values.
func (g *Graph) DeleteNode(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteNode(name)
}

func (g *Graph) deleteNode(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return NewNodeNotFoundError(name)
	}
	for _, c := range g.connectionsOf(name) {
		g.disconnect(c)
	}
	delete(g.parents, name)
	for child, parent := range g.parents {
		if parent == name {
			delete(g.parents, child)
			if err := g.setValue(g.mustRef(child, transformParentMatrixAttr), spatialmath.Identity()); err != nil {
				return err
			}
		}
	}
	g.selection = removeName(g.selection, name)
	delete(g.nodes, name)
	g.logger.Debugw("deleted node", "name", name)
	return nil
}

// Node returns the node instance registered under name.
func (g *Graph) Node(name string) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[name]
	if !ok {
		return nil, NewNodeNotFoundError(name)
	}
	return e.node, nil
}

// TypeOf returns the node type name of a node.
func (g *Graph) TypeOf(name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[name]
	if !ok {
		return "", NewNodeNotFoundError(name)
	}
	return e.typeName, nil
}

// NodeID returns the unique id minted for the node at creation.
func (g *Graph) NodeID(name string) (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.nodes[name]
	if !ok {
		return uuid.Nil, NewNodeNotFoundError(name)
	}
	return e.id, nil
}

// NodeNames returns all node names, sorted.
func (g *Graph) NodeNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := maps.Keys(g.nodes)
	sort.Strings(names)
	return names
}

// NodesOfType returns the sorted names of all nodes of the given type.
func (g *Graph) NodesOfType(typeName string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodesOfType(typeName)
}

func (g *Graph) nodesOfType(typeName string) []string {
	names := maps.Keys(lo.PickBy(g.nodes, func(_ string, e *nodeEntry) bool {
		return e.typeName == typeName
	}))
	sort.Strings(names)
	return names
}

func (g *Graph) resolve(p Plug) (plugRef, error) {
	e, ok := g.nodes[p.Node]
	if !ok {
		return plugRef{}, NewNodeNotFoundError(p.Node)
	}
	a, child, ok := e.schema.Lookup(p.Attr)
	if !ok {
		return plugRef{}, NewAttributeNotFoundError(p.Node, p.Attr)
	}
	return plugRef{node: p.Node, attr: a.Name, child: child, a: a}, nil
}

func (g *Graph) mustRef(node, attr string) plugRef {
	r, err := g.resolve(Plug{node, attr})
	if err != nil {
		panic(err)
	}
	return r
}

// Connect adds a data-flow edge. The destination must be an input that is not already driven
// (neither it nor an overlapping parent/child plug), the types must be compatible, and the edge
// must not close a cycle.
func (g *Graph) Connect(src, dst Plug) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connect(src, dst)
}

func (g *Graph) connect(src, dst Plug) error {
	s, err := g.resolve(src)
	if err != nil {
		return err
	}
	d, err := g.resolve(dst)
	if err != nil {
		return err
	}
	if d.a.Output {
		return errors.Errorf("cannot connect to output plug %s", d.plug())
	}
	if !compatible(s.valueType(), d.valueType()) {
		return errors.Errorf("cannot connect %s (%s) to %s (%s)", s.plug(), s.valueType(), d.plug(), d.valueType())
	}
	for _, c := range g.conns {
		if c.dst.overlaps(d) {
			return errors.Errorf("%s is already driven by %s", d.plug(), c.src.plug())
		}
	}
	if (s.node == d.node && s.attr == d.attr) || g.reaches(d, s) {
		return errors.Wrapf(ErrCycle, "%s -> %s", s.plug(), d.plug())
	}
	g.conns = append(g.conns, connection{src: s, dst: d})
	g.propagateDirty(d.node, d.attr, map[[2]string]bool{})
	g.logger.Debugw("connected", "src", s.plug().String(), "dst", d.plug().String())
	return nil
}

func compatible(src, dst AttrType) bool {
	numeric := func(t AttrType) bool { return t == AttrFloat || t == AttrTime }
	return src == dst || (numeric(src) && numeric(dst))
}

// reaches reports whether a change at from can dirty to, following declared affects edges inside
// nodes and connections between them.
func (g *Graph) reaches(from, to plugRef) bool {
	visited := map[[2]string]bool{}
	var walk func(node, attr string) bool
	walk = func(node, attr string) bool {
		key := [2]string{node, attr}
		if visited[key] {
			return false
		}
		visited[key] = true
		if node == to.node && attr == to.attr {
			return true
		}
		e := g.nodes[node]
		for _, out := range e.schema.Affected(attr) {
			if walk(node, out) {
				return true
			}
		}
		for _, c := range g.conns {
			if c.src.node == node && c.src.attr == attr && walk(c.dst.node, c.dst.attr) {
				return true
			}
		}
		return false
	}
	return walk(from.node, from.attr)
}

// Disconnect removes an edge. The destination keeps the last value it received.
func (g *Graph) Disconnect(src, dst Plug) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnectPlugs(src, dst)
}

func (g *Graph) disconnectPlugs(src, dst Plug) error {
	s, err := g.resolve(src)
	if err != nil {
		return err
	}
	d, err := g.resolve(dst)
	if err != nil {
		return err
	}
	for _, c := range g.conns {
		if c.src.plug() == s.plug() && c.dst.plug() == d.plug() {
			g.disconnect(c)
			return nil
		}
	}
	return errors.Errorf("%s is not connected to %s", s.plug(), d.plug())
}

func (g *Graph) disconnect(c connection) {
	// Settle the destination so it holds the value the connection last delivered.
	if e := g.nodes[c.dst.node]; e != nil && e.dirty[c.dst.attr] {
		if _, err := g.pull(c.dst); err != nil {
			g.logger.Debugw("could not settle plug before disconnecting", "plug", c.dst.plug().String(), "error", err)
		}
	}
	for i, other := range g.conns {
		if other.src.plug() == c.src.plug() && other.dst.plug() == c.dst.plug() {
			g.conns = append(g.conns[:i], g.conns[i+1:]...)
			break
		}
	}
	if e := g.nodes[c.dst.node]; e != nil {
		g.propagateDirty(c.dst.node, c.dst.attr, map[[2]string]bool{})
		if !g.driven(c.dst.node, c.dst.attr) {
			delete(e.dirty, c.dst.attr)
		}
	}
	g.logger.Debugw("disconnected", "src", c.src.plug().String(), "dst", c.dst.plug().String())
}

// Connections returns every connection with an endpoint on the named node.
func (g *Graph) Connections(name string) []Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Connection
	for _, c := range g.connectionsOf(name) {
		out = append(out, c.public())
	}
	return out
}

// Source returns the plug driving p, if any.
func (g *Graph) Source(p Plug) (Plug, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolve(p)
	if err != nil {
		return Plug{}, false
	}
	for _, c := range g.conns {
		if c.dst.node == r.node && c.dst.attr == r.attr && c.dst.child == r.child {
			return c.src.plug(), true
		}
	}
	return Plug{}, false
}

func (g *Graph) connectionsOf(name string) []connection {
	var out []connection
	for _, c := range g.conns {
		if c.src.node == name || c.dst.node == name {
			out = append(out, c)
		}
	}
	return out
}

// propagateDirty marks attr and everything downstream of it dirty. It always walks the full
// downstream set since a plug left dirty by a compute that never read it must not block
// propagation to outputs that were cleaned since.
func (g *Graph) propagateDirty(node, attr string, visited map[[2]string]bool) {
	key := [2]string{node, attr}
	if visited[key] {
		return
	}
	visited[key] = true
	e := g.nodes[node]
	if e == nil {
		return
	}
	e.dirty[attr] = true
	for _, out := range e.schema.Affected(attr) {
		g.propagateDirty(node, out, visited)
	}
	for _, c := range g.conns {
		if c.src.node == node && c.src.attr == attr {
			g.propagateDirty(c.dst.node, c.dst.attr, visited)
		}
	}
}

// MarkDirty dirties a plug and everything downstream of it, e.g. after a node's internal
// configuration changed outside of its attributes.
func (g *Graph) MarkDirty(p Plug) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolve(p)
	if err != nil {
		return err
	}
	g.propagateDirty(r.node, r.attr, map[[2]string]bool{})
	return nil
}

// IsDirty reports whether the plug's attribute is waiting to be recomputed or pulled.
func (g *Graph) IsDirty(p Plug) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolve(p)
	if err != nil {
		return false
	}
	return g.nodes[r.node].dirty[r.attr]
}

// Get returns the value of a plug, evaluating upstream nodes as needed.
func (g *Graph) Get(p Plug) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolve(p)
	if err != nil {
		return nil, err
	}
	return g.pull(r)
}

// GetFloat is Get for float and time plugs, including vector children.
func (g *Graph) GetFloat(p Plug) (float64, error) {
	v, err := g.Get(p)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, NewUnexpectedTypeError(AttrFloat, v)
	}
	return f, nil
}

// GetVector is Get for vector plugs.
func (g *Graph) GetVector(p Plug) (r3.Vector, error) {
	v, err := g.Get(p)
	if err != nil {
		return r3.Vector{}, err
	}
	vec, ok := v.(r3.Vector)
	if !ok {
		return r3.Vector{}, NewUnexpectedTypeError(AttrVector, v)
	}
	return vec, nil
}

// GetMatrix is Get for matrix plugs.
func (g *Graph) GetMatrix(p Plug) (spatialmath.Matrix, error) {
	v, err := g.Get(p)
	if err != nil {
		return spatialmath.Matrix{}, err
	}
	m, ok := v.(spatialmath.Matrix)
	if !ok {
		return spatialmath.Matrix{}, NewUnexpectedTypeError(AttrMatrix, v)
	}
	return m, nil
}

// pull returns the current value of r, computing or fetching it first if it is dirty.
func (g *Graph) pull(r plugRef) (interface{}, error) {
	e := g.nodes[r.node]
	if e.dirty[r.attr] {
		if e.schema.computed(r.attr) {
			if err := g.compute(e, r); err != nil {
				return nil, err
			}
		} else {
			v, err := g.gather(e, r.attr)
			if err != nil {
				return nil, err
			}
			e.values[r.attr] = v
			delete(e.dirty, r.attr)
		}
	}
	v := e.values[r.attr]
	if r.child >= 0 {
		return component(v.(r3.Vector), r.child), nil
	}
	return v, nil
}

func (g *Graph) compute(e *nodeEntry, r plugRef) error {
	err := e.node.Compute(r.plug(), &DataBlock{g: g, e: e})
	if errors.Is(err, ErrUnknownParameter) {
		return errors.Wrapf(err, "no node computes %s", r.plug())
	}
	if err != nil {
		return errors.Wrapf(err, "computing %s", r.plug())
	}
	if e.dirty[r.attr] {
		e.logger.Debugw("compute returned without cleaning plug", "plug", r.plug().String())
		delete(e.dirty, r.attr)
	}
	return nil
}

// gather assembles an input attribute's value from its incoming connections. Unconnected
// components keep their stored value.
func (g *Graph) gather(e *nodeEntry, attr string) (interface{}, error) {
	v := e.values[attr]
	for _, c := range g.conns {
		if c.dst.node != e.name || c.dst.attr != attr {
			continue
		}
		upstream, err := g.pull(c.src)
		if err != nil {
			return nil, err
		}
		if c.dst.child >= 0 {
			v = withComponent(v.(r3.Vector), c.dst.child, upstream.(float64))
			continue
		}
		v, err = coerce(c.dst.a.Type, upstream)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// SetValue writes a value to a plug that is not driven by a connection and dirties everything
// downstream of it.
func (g *Graph) SetValue(p Plug, value interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, err := g.resolve(p)
	if err != nil {
		return err
	}
	return g.setValue(r, value)
}

func (g *Graph) setValue(r plugRef, value interface{}) error {
	for _, c := range g.conns {
		if c.dst.overlaps(r) {
			return errors.Errorf("%s is driven by %s and cannot be set", r.plug(), c.src.plug())
		}
	}
	e := g.nodes[r.node]
	var v interface{}
	if r.child >= 0 {
		f, err := coerce(AttrFloat, value)
		if err != nil {
			return err
		}
		current := e.values[r.attr].(r3.Vector)
		v = withComponent(current, r.child, f.(float64))
	} else {
		var err error
		if v, err = coerce(r.a.Type, value); err != nil {
			return errors.Wrapf(err, "setting %s", r.plug())
		}
		if err := checkMin(r.a, v); err != nil {
			return err
		}
	}
	g.propagateDirty(r.node, r.attr, map[[2]string]bool{})
	e.values[r.attr] = v
	if !g.driven(r.node, r.attr) {
		delete(e.dirty, r.attr)
	}
	return nil
}

// driven reports whether any part of the attribute has an incoming connection.
func (g *Graph) driven(node, attr string) bool {
	for _, c := range g.conns {
		if c.dst.node == node && c.dst.attr == attr {
			return true
		}
	}
	return false
}

// storedValue returns the raw stored value without evaluating anything.
func (g *Graph) storedValue(r plugRef) interface{} {
	v := g.nodes[r.node].values[r.attr]
	if r.child >= 0 {
		return component(v.(r3.Vector), r.child)
	}
	return v
}

// Select replaces the active selection.
func (g *Graph) Select(names ...string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range names {
		if _, ok := g.nodes[n]; !ok {
			return NewNodeNotFoundError(n)
		}
	}
	g.selection = append([]string(nil), names...)
	return nil
}

// Selection returns the active selection in selection order.
func (g *Graph) Selection() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.selection...)
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
