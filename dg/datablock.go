package dg

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/spatialmath"
)

// DataBlock is a node's view of its own attribute storage during Compute. Reading an input pulls
// it from upstream if needed; writing an output stores it without dirtying anything.
type DataBlock struct {
	g *Graph
	e *nodeEntry
}

// Logger returns the per-node logger.
func (db *DataBlock) Logger() logging.Logger {
	return db.e.logger
}

// InputValue returns the current value of attr, evaluating upstream if it is dirty.
func (db *DataBlock) InputValue(attr string) (interface{}, error) {
	a, child, ok := db.e.schema.Lookup(attr)
	if !ok {
		return nil, NewAttributeNotFoundError(db.e.name, attr)
	}
	return db.g.pull(plugRef{node: db.e.name, attr: a.Name, child: child, a: a})
}

// Float reads a float (or time) attribute.
func (db *DataBlock) Float(attr string) (float64, error) {
	v, err := db.InputValue(attr)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, NewUnexpectedTypeError(AttrFloat, v)
	}
	return f, nil
}

// Time reads a time attribute, in frames.
func (db *DataBlock) Time(attr string) (float64, error) {
	return db.Float(attr)
}

// Bool reads a bool attribute.
func (db *DataBlock) Bool(attr string) (bool, error) {
	v, err := db.InputValue(attr)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, NewUnexpectedTypeError(AttrBool, v)
	}
	return b, nil
}

// Vector reads a vector attribute.
func (db *DataBlock) Vector(attr string) (r3.Vector, error) {
	v, err := db.InputValue(attr)
	if err != nil {
		return r3.Vector{}, err
	}
	vec, ok := v.(r3.Vector)
	if !ok {
		return r3.Vector{}, NewUnexpectedTypeError(AttrVector, v)
	}
	return vec, nil
}

// Matrix reads a matrix attribute.
func (db *DataBlock) Matrix(attr string) (spatialmath.Matrix, error) {
	v, err := db.InputValue(attr)
	if err != nil {
		return spatialmath.Matrix{}, err
	}
	m, ok := v.(spatialmath.Matrix)
	if !ok {
		return spatialmath.Matrix{}, NewUnexpectedTypeError(AttrMatrix, v)
	}
	return m, nil
}

// OutputValue returns the stored value of attr without evaluating it.
func (db *DataBlock) OutputValue(attr string) (interface{}, error) {
	a, child, ok := db.e.schema.Lookup(attr)
	if !ok {
		return nil, NewAttributeNotFoundError(db.e.name, attr)
	}
	return db.g.storedValue(plugRef{node: db.e.name, attr: a.Name, child: child, a: a}), nil
}

// SetOutput stores a value for a whole attribute. It does not clean the attribute; call SetClean.
func (db *DataBlock) SetOutput(attr string, value interface{}) error {
	a, child, ok := db.e.schema.Lookup(attr)
	if !ok {
		return NewAttributeNotFoundError(db.e.name, attr)
	}
	if child >= 0 {
		return errors.Errorf("SetOutput needs the whole attribute, got child %q", attr)
	}
	v, err := coerce(a.Type, value)
	if err != nil {
		return errors.Wrapf(err, "setting %s.%s", db.e.name, a.Name)
	}
	db.e.values[a.Name] = v
	return nil
}

// SetClean marks attr as up to date.
func (db *DataBlock) SetClean(attr string) {
	if root := db.e.schema.Root(attr); root != "" {
		delete(db.e.dirty, root)
	}
}
