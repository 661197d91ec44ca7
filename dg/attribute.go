package dg

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pushpull/spatialmath"
)

// AttrType is the data type held by an attribute.
type AttrType int

// The attribute types a node may declare.
const (
	AttrFloat AttrType = iota
	AttrBool
	AttrTime
	AttrVector
	AttrMatrix
)

func (t AttrType) String() string {
	switch t {
	case AttrFloat:
		return "float"
	case AttrBool:
		return "bool"
	case AttrTime:
		return "time"
	case AttrVector:
		return "vector"
	case AttrMatrix:
		return "matrix"
	default:
		return fmt.Sprintf("AttrType(%d)", int(t))
	}
}

// vectorAxes are the suffixes given to the children of a vector attribute.
var vectorAxes = [3]string{"X", "Y", "Z"}

// Attribute describes one named value on a node type. Vector attributes expose three float
// children named <name>X, <name>Y and <name>Z.
type Attribute struct {
	Name  string
	Short string
	Type  AttrType
	// Default is used when a node is created. A nil default is the zero value of Type, or the
	// identity for matrices.
	Default interface{}
	// Output attributes are written by the node and cannot be the destination of a connection.
	Output   bool
	Hidden   bool
	Keyable  bool
	Storable bool
	// Min, when set, is the smallest value accepted by SetValue on a float attribute.
	Min *float64
}

// ChildName returns the long name of the i-th child of a vector attribute.
func (a Attribute) ChildName(i int) string {
	return a.Name + vectorAxes[i]
}

// ChildShort returns the short name of the i-th child of a vector attribute.
func (a Attribute) ChildShort(i int) string {
	if a.Short == "" {
		return ""
	}
	return a.Short + string(rune('x'+i))
}

func (a Attribute) defaultValue() interface{} {
	if a.Default != nil {
		v, err := coerce(a.Type, a.Default)
		if err == nil {
			return v
		}
	}
	return zeroValue(a.Type)
}

func zeroValue(t AttrType) interface{} {
	switch t {
	case AttrBool:
		return false
	case AttrVector:
		return r3.Vector{}
	case AttrMatrix:
		return spatialmath.Identity()
	default:
		return 0.0
	}
}

// FloatPtr is a convenience for Attribute.Min.
func FloatPtr(v float64) *float64 {
	return &v
}

// coerce converts v into the canonical Go type of t.
func coerce(t AttrType, v interface{}) (interface{}, error) {
	switch t {
	case AttrFloat, AttrTime:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case bool:
			if x {
				return 1.0, nil
			}
			return 0.0, nil
		}
	case AttrBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case float64:
			return x != 0, nil
		case int:
			return x != 0, nil
		}
	case AttrVector:
		switch x := v.(type) {
		case r3.Vector:
			return x, nil
		case *r3.Vector:
			if x != nil {
				return *x, nil
			}
		case []float64:
			if len(x) == 3 {
				return r3.Vector{X: x[0], Y: x[1], Z: x[2]}, nil
			}
		}
	case AttrMatrix:
		switch x := v.(type) {
		case spatialmath.Matrix:
			return x, nil
		case [4][4]float64:
			return spatialmath.NewMatrixFromRows(x), nil
		}
	}
	return nil, NewUnexpectedTypeError(t, v)
}

// component returns one axis of a vector.
func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// withComponent returns v with one axis replaced.
func withComponent(v r3.Vector, i int, f float64) r3.Vector {
	switch i {
	case 0:
		v.X = f
	case 1:
		v.Y = f
	default:
		v.Z = f
	}
	return v
}

func checkMin(a Attribute, v interface{}) error {
	if a.Min == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	if math.IsNaN(f) || f < *a.Min {
		return errors.Errorf("%s must be at least %g, got %g", a.Name, *a.Min, f)
	}
	return nil
}
