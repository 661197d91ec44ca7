package dg

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnknownParameter is returned by a node's Compute when asked for a plug it does not produce.
	// The graph treats it as "not handled here" rather than as a failure of the node.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrNodeNotFound is returned when a node name does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAttributeNotFound is returned when an attribute name does not resolve on a node.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrNotTransform is returned when a transform is required but another node type was given.
	ErrNotTransform = errors.New("node is not a transform")

	// ErrNoTimeSource is returned when the graph has no time node.
	ErrNoTimeSource = errors.New("no time source in graph")

	// ErrCycle is returned when a connection would create a dependency cycle.
	ErrCycle = errors.New("connection would create a cycle")
)

// NewNodeNotFoundError is used when a node is not found.
func NewNodeNotFoundError(name string) error {
	return errors.Wrapf(ErrNodeNotFound, "%q", name)
}

// NewAttributeNotFoundError is used when a node has no attribute by that name.
func NewAttributeNotFoundError(node, attr string) error {
	return errors.Wrapf(ErrAttributeNotFound, "%q has no attribute %q", node, attr)
}

// NewNotTransformError is used when a node of the wrong type is given where a transform is required.
func NewNotTransformError(name, typeName string) error {
	return errors.Wrapf(ErrNotTransform, "%q is a %s", name, typeName)
}

// NewUnexpectedTypeError is used when a value does not match the attribute type.
func NewUnexpectedTypeError(expected AttrType, actual interface{}) error {
	return errors.Errorf("expected %s value but got %T", expected, actual)
}
