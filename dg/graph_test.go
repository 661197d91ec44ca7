package dg

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/spatialmath"
)

const (
	counterTypeName = "testCounter"
	orphanTypeName  = "testOrphan"
)

var counterSchema = NewSchema(
	Attribute{Name: "in", Short: "i", Type: AttrFloat},
	Attribute{Name: "out", Short: "o", Type: AttrFloat, Output: true},
).Affects("in", "out")

// counterNode doubles its input and counts how often it was computed.
type counterNode struct {
	computes int
}

func (n *counterNode) Compute(plug Plug, data *DataBlock) error {
	if counterSchema.Root(plug.Attr) != "out" {
		return ErrUnknownParameter
	}
	n.computes++
	in, err := data.Float("in")
	if err != nil {
		return err
	}
	if err := data.SetOutput("out", 2*in); err != nil {
		return err
	}
	data.SetClean("out")
	return nil
}

var orphanSchema = NewSchema(
	Attribute{Name: "in", Type: AttrFloat},
	Attribute{Name: "out", Type: AttrFloat, Output: true},
).Affects("in", "out")

// orphanNode declares an output but never produces it.
type orphanNode struct{}

func (orphanNode) Compute(Plug, *DataBlock) error {
	return ErrUnknownParameter
}

func init() {
	RegisterNodeType(NodeType{Name: counterTypeName, Schema: counterSchema, Creator: func() Node { return &counterNode{} }})
	RegisterNodeType(NodeType{Name: orphanTypeName, Schema: orphanSchema, Creator: func() Node { return orphanNode{} }})
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	return NewGraph(logging.NewTestLogger(t))
}

func mustCreate(t *testing.T, g *Graph, typeName, name string) string {
	t.Helper()
	got, err := g.CreateNode(typeName, name)
	test.That(t, err, test.ShouldBeNil)
	return got
}

func TestNewGraphHasTime(t *testing.T) {
	g := newTestGraph(t)
	test.That(t, g.NodeNames(), test.ShouldResemble, []string{DefaultTimeNode})
	src, err := g.TimeSource()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, src, test.ShouldResemble, Plug{DefaultTimeNode, "outTime"})
	test.That(t, g.CurrentTime(), test.ShouldEqual, 1.0)

	test.That(t, g.SetCurrentTime(12), test.ShouldBeNil)
	now, err := g.GetFloat(src)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, now, test.ShouldEqual, 12.0)

	test.That(t, g.DeleteNode(DefaultTimeNode), test.ShouldBeNil)
	_, err = g.TimeSource()
	test.That(t, errors.Is(err, ErrNoTimeSource), test.ShouldBeTrue)
}

func TestUniqueNames(t *testing.T) {
	g := newTestGraph(t)
	test.That(t, mustCreate(t, g, TransformTypeName, ""), test.ShouldEqual, "transform1")
	test.That(t, mustCreate(t, g, TransformTypeName, ""), test.ShouldEqual, "transform2")
	test.That(t, mustCreate(t, g, TransformTypeName, "ball"), test.ShouldEqual, "ball")
	test.That(t, mustCreate(t, g, TransformTypeName, "ball"), test.ShouldEqual, "ball1")
	test.That(t, mustCreate(t, g, TransformTypeName, "ball1"), test.ShouldEqual, "ball2")
	test.That(t, g.NodesOfType(TransformTypeName), test.ShouldHaveLength, 5)

	_, err := g.CreateNode("noSuchType", "")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTransformHierarchy(t *testing.T) {
	g := newTestGraph(t)
	root := mustCreate(t, g, TransformTypeName, "root")
	child := mustCreate(t, g, TransformTypeName, "child")
	test.That(t, g.SetValue(NewPlug(root, "translate"), r3.Vector{X: 10}), test.ShouldBeNil)
	test.That(t, g.SetValue(NewPlug(root, "rotate"), r3.Vector{Z: 90}), test.ShouldBeNil)
	test.That(t, g.SetValue(NewPlug(child, "translate"), r3.Vector{X: 1}), test.ShouldBeNil)

	pos, err := g.WorldTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldResemble, r3.Vector{X: 1})

	test.That(t, g.Parent(child, root), test.ShouldBeNil)
	test.That(t, g.ParentOf(child), test.ShouldEqual, root)
	pos, err = g.WorldTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pos, r3.Vector{X: 10, Y: 1}, 1e-12), test.ShouldBeTrue)

	local, err := g.LocalTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, local, test.ShouldResemble, r3.Vector{X: 1})

	// moving the parent moves the child
	test.That(t, g.IsDirty(NewPlug(child, "worldMatrix")), test.ShouldBeFalse)
	test.That(t, g.SetValue(NewPlug(root, "translateY"), 5.0), test.ShouldBeNil)
	test.That(t, g.IsDirty(NewPlug(child, "worldMatrix")), test.ShouldBeTrue)
	pos, err = g.WorldTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(pos, r3.Vector{X: 10, Y: 6}, 1e-12), test.ShouldBeTrue)

	// parenting the root under its own child is a cycle
	err = g.Parent(root, child)
	test.That(t, errors.Is(err, ErrCycle), test.ShouldBeTrue)

	test.That(t, g.Parent(child, ""), test.ShouldBeNil)
	test.That(t, g.ParentOf(child), test.ShouldEqual, "")
	pos, err = g.WorldTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldResemble, r3.Vector{X: 1})
}

func TestNotTransform(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.WorldTranslation(DefaultTimeNode)
	test.That(t, errors.Is(err, ErrNotTransform), test.ShouldBeTrue)
	_, err = g.WorldTranslation("nobody")
	test.That(t, errors.Is(err, ErrNodeNotFound), test.ShouldBeTrue)
	test.That(t, g.IsTransform(DefaultTimeNode), test.ShouldBeFalse)
}

func TestLazyEvaluation(t *testing.T) {
	g := newTestGraph(t)
	a := mustCreate(t, g, counterTypeName, "a")
	b := mustCreate(t, g, counterTypeName, "b")
	test.That(t, g.SetValue(NewPlug(a, "in"), 3), test.ShouldBeNil)
	test.That(t, g.Connect(NewPlug(a, "out"), NewPlug(b, "in")), test.ShouldBeNil)

	out, err := g.GetFloat(NewPlug(b, "o"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, 12.0)

	na, _ := g.Node(a)
	nb, _ := g.Node(b)
	test.That(t, na.(*counterNode).computes, test.ShouldEqual, 1)
	test.That(t, nb.(*counterNode).computes, test.ShouldEqual, 1)

	// clean plugs are served from storage
	_, err = g.GetFloat(NewPlug(b, "out"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nb.(*counterNode).computes, test.ShouldEqual, 1)

	test.That(t, g.SetValue(NewPlug(a, "in"), 1), test.ShouldBeNil)
	test.That(t, g.IsDirty(NewPlug(b, "out")), test.ShouldBeTrue)
	out, err = g.GetFloat(NewPlug(b, "out"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, 4.0)
	test.That(t, nb.(*counterNode).computes, test.ShouldEqual, 2)
}

func TestConnectValidation(t *testing.T) {
	g := newTestGraph(t)
	a := mustCreate(t, g, counterTypeName, "a")
	b := mustCreate(t, g, counterTypeName, "b")
	xf := mustCreate(t, g, TransformTypeName, "xf")

	// outputs cannot be driven
	err := g.Connect(NewPlug(a, "out"), NewPlug(b, "out"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "output")

	// type mismatch
	err = g.Connect(NewPlug(xf, "worldMatrix"), NewPlug(a, "in"))
	test.That(t, err, test.ShouldNotBeNil)

	// self loop through affects
	err = g.Connect(NewPlug(a, "out"), NewPlug(a, "in"))
	test.That(t, errors.Is(err, ErrCycle), test.ShouldBeTrue)

	// time feeds floats
	test.That(t, g.Connect(NewPlug(DefaultTimeNode, "outTime"), NewPlug(a, "in")), test.ShouldBeNil)
	err = g.Connect(NewPlug(b, "out"), NewPlug(a, "in"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already driven")

	// driven plugs cannot be set
	err = g.SetValue(NewPlug(a, "in"), 2)
	test.That(t, err, test.ShouldNotBeNil)

	// whole and child overlap
	test.That(t, g.Connect(NewPlug(a, "out"), NewPlug(xf, "translateX")), test.ShouldBeNil)
	err = g.Connect(NewPlug(xf, "worldMatrix"), NewPlug(xf, "translate"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, g.SetValue(NewPlug(xf, "translateY"), 2), test.ShouldBeNil)

	_, err = g.Get(NewPlug(xf, "nope"))
	test.That(t, errors.Is(err, ErrAttributeNotFound), test.ShouldBeTrue)
}

func TestChildPlugsAndAnimation(t *testing.T) {
	g := newTestGraph(t)
	xf := mustCreate(t, g, TransformTypeName, "ball")
	curveName := mustCreate(t, g, AnimCurveTypeName, "")
	test.That(t, curveName, test.ShouldEqual, "animCurve1")
	n, err := g.Node(curveName)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, n.(*AnimCurve).SetKeys(Key{Time: 10, Value: 20}, Key{Time: 0, Value: 0}), test.ShouldBeNil)

	test.That(t, g.Connect(NewPlug(DefaultTimeNode, "outTime"), NewPlug(curveName, "input")), test.ShouldBeNil)
	test.That(t, g.Connect(NewPlug(curveName, "output"), NewPlug(xf, "tx")), test.ShouldBeNil)
	test.That(t, g.SetValue(NewPlug(xf, "translateZ"), 7), test.ShouldBeNil)

	for _, tc := range []struct {
		frame, x float64
	}{
		{-5, 0}, {0, 0}, {2.5, 5}, {5, 10}, {10, 20}, {30, 20},
	} {
		test.That(t, g.SetCurrentTime(tc.frame), test.ShouldBeNil)
		pos, err := g.WorldTranslation(xf)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos.X, test.ShouldAlmostEqual, tc.x)
		test.That(t, pos.Z, test.ShouldEqual, 7.0)
	}

	// re-keying a curve in the graph takes effect once its output is dirtied
	test.That(t, n.(*AnimCurve).SetKeys(Key{Time: 0, Value: 0}, Key{Time: 40, Value: 40}), test.ShouldBeNil)
	test.That(t, g.MarkDirty(NewPlug(curveName, "output")), test.ShouldBeNil)
	test.That(t, g.IsDirty(NewPlug(xf, "translateX")), test.ShouldBeTrue)
	pos, err := g.WorldTranslation(xf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos.X, test.ShouldAlmostEqual, 30.0)
	test.That(t, g.MarkDirty(NewPlug("nope", "output")), test.ShouldNotBeNil)

	src, ok := g.Source(NewPlug(xf, "translateX"))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, src, test.ShouldResemble, Plug{curveName, "output"})

	// disconnecting keeps the last delivered value
	test.That(t, g.Disconnect(NewPlug(curveName, "output"), NewPlug(xf, "translateX")), test.ShouldBeNil)
	test.That(t, g.SetCurrentTime(0), test.ShouldBeNil)
	x, err := g.GetFloat(NewPlug(xf, "translateX"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, x, test.ShouldEqual, 30.0)

	test.That(t, n.(*AnimCurve).SetKeys(Key{Time: 1, Value: 1}, Key{Time: 1, Value: 2}), test.ShouldNotBeNil)
}

func TestUnknownParameter(t *testing.T) {
	g := newTestGraph(t)
	o := mustCreate(t, g, orphanTypeName, "")
	_, err := g.Get(NewPlug(o, "out"))
	test.That(t, errors.Is(err, ErrUnknownParameter), test.ShouldBeTrue)
}

func TestMinimum(t *testing.T) {
	schema := NewSchema(Attribute{Name: "d", Type: AttrFloat, Min: FloatPtr(0)})
	a, child, ok := schema.Lookup("d")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, child, test.ShouldEqual, -1)
	test.That(t, checkMin(a, 1.0), test.ShouldBeNil)
	test.That(t, checkMin(a, -1.0), test.ShouldNotBeNil)
}

func TestSchemaPanicsOnDuplicates(t *testing.T) {
	defer func() {
		test.That(t, recover(), test.ShouldNotBeNil)
	}()
	NewSchema(Attribute{Name: "a", Short: "x"}, Attribute{Name: "x"})
}

func TestParsePlug(t *testing.T) {
	p, err := ParsePlug("group1|ball.translateX")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldResemble, Plug{"group1|ball", "translateX"})
	test.That(t, p.String(), test.ShouldEqual, "group1|ball.translateX")

	for _, bad := range []string{"", "ball", ".x", "ball."} {
		_, err := ParsePlug(bad)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestDeleteNode(t *testing.T) {
	g := newTestGraph(t)
	parent := mustCreate(t, g, TransformTypeName, "parent")
	child := mustCreate(t, g, TransformTypeName, "child")
	test.That(t, g.SetValue(NewPlug(parent, "translate"), r3.Vector{Y: 4}), test.ShouldBeNil)
	test.That(t, g.SetValue(NewPlug(child, "translate"), r3.Vector{X: 1}), test.ShouldBeNil)
	test.That(t, g.Parent(child, parent), test.ShouldBeNil)
	test.That(t, g.Select(parent, child), test.ShouldBeNil)

	test.That(t, g.DeleteNode(parent), test.ShouldBeNil)
	test.That(t, g.Selection(), test.ShouldResemble, []string{child})
	test.That(t, g.ParentOf(child), test.ShouldEqual, "")
	test.That(t, g.Connections(child), test.ShouldBeEmpty)
	pos, err := g.WorldTranslation(child)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldResemble, r3.Vector{X: 1})

	test.That(t, errors.Is(g.DeleteNode(parent), ErrNodeNotFound), test.ShouldBeTrue)
	test.That(t, errors.Is(g.Select("ghost"), ErrNodeNotFound), test.ShouldBeTrue)
}
