package dg

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pushpull/spatialmath"
)

// TransformTypeName is the registered type name of transform nodes.
const TransformTypeName = "transform"

// Transform attribute names.
const (
	TransformTranslateAttr    = "translate"
	TransformRotateAttr       = "rotate"
	TransformScaleAttr        = "scale"
	TransformMatrixAttr       = "matrix"
	TransformWorldMatrixAttr  = "worldMatrix"
	transformParentMatrixAttr = "parentMatrix"
)

// TransformParentMatrixAttr is the world matrix of a transform's parent. It is driven by the
// parent's worldMatrix while parented and holds the identity otherwise.
const TransformParentMatrixAttr = transformParentMatrixAttr

var transformSchema = NewSchema(
	Attribute{Name: TransformTranslateAttr, Short: "t", Type: AttrVector, Keyable: true, Storable: true},
	Attribute{Name: TransformRotateAttr, Short: "r", Type: AttrVector, Keyable: true, Storable: true},
	Attribute{
		Name: TransformScaleAttr, Short: "s", Type: AttrVector, Keyable: true, Storable: true,
		Default: r3.Vector{X: 1, Y: 1, Z: 1},
	},
	Attribute{Name: transformParentMatrixAttr, Short: "pm", Type: AttrMatrix, Hidden: true},
	Attribute{Name: TransformMatrixAttr, Short: "m", Type: AttrMatrix, Output: true},
	Attribute{Name: TransformWorldMatrixAttr, Short: "wm", Type: AttrMatrix, Output: true},
).
	Affects(TransformTranslateAttr, TransformMatrixAttr, TransformWorldMatrixAttr).
	Affects(TransformRotateAttr, TransformMatrixAttr, TransformWorldMatrixAttr).
	Affects(TransformScaleAttr, TransformMatrixAttr, TransformWorldMatrixAttr).
	Affects(transformParentMatrixAttr, TransformWorldMatrixAttr)

type transformNode struct{}

func (transformNode) Compute(plug Plug, data *DataBlock) error {
	root := transformSchema.Root(plug.Attr)
	if root != TransformMatrixAttr && root != TransformWorldMatrixAttr {
		return ErrUnknownParameter
	}
	t, err := data.Vector(TransformTranslateAttr)
	if err != nil {
		return err
	}
	r, err := data.Vector(TransformRotateAttr)
	if err != nil {
		return err
	}
	s, err := data.Vector(TransformScaleAttr)
	if err != nil {
		return err
	}
	local := spatialmath.NewMatrixFromTRS(t, r, s)
	if err := data.SetOutput(TransformMatrixAttr, local); err != nil {
		return err
	}
	data.SetClean(TransformMatrixAttr)
	if root == TransformMatrixAttr {
		return nil
	}

	parent, err := data.Matrix(transformParentMatrixAttr)
	if err != nil {
		return err
	}
	if err := data.SetOutput(TransformWorldMatrixAttr, parent.Mul(local)); err != nil {
		return err
	}
	data.SetClean(TransformWorldMatrixAttr)
	return nil
}

func init() {
	RegisterNodeType(NodeType{
		Name:    TransformTypeName,
		ID:      0x5846524d,
		Schema:  transformSchema,
		Creator: func() Node { return transformNode{} },
	})
}

// IsTransform reports whether the named node is a transform.
func (g *Graph) IsTransform(name string) bool {
	t, err := g.TypeOf(name)
	return err == nil && t == TransformTypeName
}

func (g *Graph) requireTransform(name string) error {
	e, ok := g.nodes[name]
	if !ok {
		return NewNodeNotFoundError(name)
	}
	if e.typeName != TransformTypeName {
		return NewNotTransformError(name, e.typeName)
	}
	return nil
}

// Parent places child under parent, keeping child's local values. An empty parent moves child to
// the world.
func (g *Graph) Parent(child, parent string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireTransform(child); err != nil {
		return err
	}
	if parent != "" {
		if err := g.requireTransform(parent); err != nil {
			return err
		}
	}
	dst := Plug{child, transformParentMatrixAttr}
	for _, c := range g.conns {
		if c.dst.node == child && c.dst.attr == transformParentMatrixAttr {
			g.disconnect(c)
			break
		}
	}
	delete(g.parents, child)
	if parent == "" {
		return g.setValue(g.mustRef(child, transformParentMatrixAttr), spatialmath.Identity())
	}
	if err := g.connect(Plug{parent, TransformWorldMatrixAttr}, dst); err != nil {
		return errors.Wrapf(err, "parenting %q under %q", child, parent)
	}
	g.parents[child] = parent
	return nil
}

// ParentOf returns the parent of a transform, or "" when it sits in the world.
func (g *Graph) ParentOf(child string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.parents[child]
}

// WorldMatrix evaluates a transform's world matrix.
func (g *Graph) WorldMatrix(name string) (spatialmath.Matrix, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireTransform(name); err != nil {
		return spatialmath.Matrix{}, err
	}
	v, err := g.pull(g.mustRef(name, TransformWorldMatrixAttr))
	if err != nil {
		return spatialmath.Matrix{}, err
	}
	return v.(spatialmath.Matrix), nil
}

// WorldTranslation evaluates a transform's world-space position.
func (g *Graph) WorldTranslation(name string) (r3.Vector, error) {
	m, err := g.WorldMatrix(name)
	if err != nil {
		return r3.Vector{}, err
	}
	return m.Translation(), nil
}

// LocalTranslation evaluates a transform's translate, i.e. its position in parent space.
func (g *Graph) LocalTranslation(name string) (r3.Vector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.requireTransform(name); err != nil {
		return r3.Vector{}, err
	}
	v, err := g.pull(g.mustRef(name, TransformTranslateAttr))
	if err != nil {
		return r3.Vector{}, err
	}
	return v.(r3.Vector), nil
}
