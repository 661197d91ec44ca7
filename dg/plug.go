package dg

import (
	"strings"

	"github.com/pkg/errors"
)

// Plug names one attribute (or vector child) on one node, e.g. "pCube1.translateX".
type Plug struct {
	Node string
	Attr string
}

// NewPlug is a convenience constructor.
func NewPlug(node, attr string) Plug {
	return Plug{Node: node, Attr: attr}
}

// ParsePlug parses "node.attr".
func ParsePlug(s string) (Plug, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return Plug{}, errors.Errorf("invalid plug %q, expected node.attribute", s)
	}
	return Plug{Node: s[:idx], Attr: s[idx+1:]}, nil
}

func (p Plug) String() string {
	return p.Node + "." + p.Attr
}

// Connection is a directed data-flow edge between two plugs.
type Connection struct {
	Src Plug
	Dst Plug
}

func (c Connection) String() string {
	return c.Src.String() + " -> " + c.Dst.String()
}

// plugRef is a plug resolved against its node's schema.
type plugRef struct {
	node  string
	attr  string // long name of the root attribute
	child int    // -1 for the whole attribute
	a     Attribute
}

func (r plugRef) plug() Plug {
	if r.child >= 0 {
		return Plug{r.node, r.a.ChildName(r.child)}
	}
	return Plug{r.node, r.attr}
}

func (r plugRef) valueType() AttrType {
	if r.child >= 0 {
		return AttrFloat
	}
	return r.a.Type
}

// overlaps reports whether two refs on the same attribute share storage.
func (r plugRef) overlaps(o plugRef) bool {
	if r.node != o.node || r.attr != o.attr {
		return false
	}
	return r.child < 0 || o.child < 0 || r.child == o.child
}

type connection struct {
	src plugRef
	dst plugRef
}

func (c connection) public() Connection {
	return Connection{Src: c.src.plug(), Dst: c.dst.plug()}
}
