package dg

import (
	"sync"

	"github.com/pkg/errors"
)

// Node is a computational node. Compute is called when a dirty plug the node owns is requested. A
// node must return ErrUnknownParameter for plugs it does not produce.
type Node interface {
	Compute(plug Plug, data *DataBlock) error
}

// Creator makes a new instance of a node type.
type Creator func() Node

// NodeType is the registration record of a node type.
type NodeType struct {
	Name    string
	ID      uint32
	Schema  *Schema
	Creator Creator
}

var (
	registryMu   sync.RWMutex
	nodeRegistry = map[string]NodeType{}
)

// RegisterNodeType registers a node type by name. It panics when the name or id is already taken.
func RegisterNodeType(nt NodeType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if nt.Name == "" || nt.Schema == nil || nt.Creator == nil {
		panic(errors.Errorf("incomplete node type registration %q", nt.Name))
	}
	if _, old := nodeRegistry[nt.Name]; old {
		panic(errors.Errorf("trying to register two node types with same name %s", nt.Name))
	}
	for _, other := range nodeRegistry {
		if nt.ID != 0 && other.ID == nt.ID {
			panic(errors.Errorf("node types %s and %s share id %#x", nt.Name, other.Name, nt.ID))
		}
	}
	nodeRegistry[nt.Name] = nt
}

// LookupNodeType returns the registration for name.
func LookupNodeType(name string) (NodeType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	nt, ok := nodeRegistry[name]
	return nt, ok
}
