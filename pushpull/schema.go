package pushpull

import (
	"go.viam.com/pushpull/dg"
)

// TypeName is the registered node type name of the constraint.
const TypeName = "pushPullConstraint"

// TypeID is the node type id of the constraint.
const TypeID uint32 = 0x0011A640

// Attribute names of the constraint node.
const (
	ConstraintTranslateAttr    = "constraintTranslate"
	InTimeAttr                 = "inTime"
	StartFrameAttr             = "startFrame"
	DistanceAttr               = "distance"
	TargetWorldMatrixAttr      = "targetWorldMatrix"
	ConstraintParentMatrixAttr = "constraintParentMatrix"
	StartPositionAttr          = "startPosition"
	PushAttr                   = "push"
	PullAttr                   = "pull"
	LastPositionAttr           = "lastPosition"
)

// DefaultStartFrame is the startFrame of a node created without one.
const DefaultStartFrame = 1.0

var schema = dg.NewSchema(
	dg.Attribute{Name: ConstraintTranslateAttr, Short: "ct", Type: dg.AttrVector, Output: true},
	dg.Attribute{Name: InTimeAttr, Short: "it", Type: dg.AttrTime, Default: 1.0, Hidden: true},
	dg.Attribute{
		Name: StartFrameAttr, Short: "stf", Type: dg.AttrFloat, Default: DefaultStartFrame,
		Keyable: true, Storable: true,
	},
	dg.Attribute{
		Name: DistanceAttr, Short: "dist", Type: dg.AttrFloat, Min: dg.FloatPtr(0),
		Keyable: true, Storable: true,
	},
	dg.Attribute{Name: TargetWorldMatrixAttr, Short: "twm", Type: dg.AttrMatrix},
	dg.Attribute{Name: ConstraintParentMatrixAttr, Short: "cpm", Type: dg.AttrMatrix},
	dg.Attribute{Name: StartPositionAttr, Short: "sp", Type: dg.AttrVector, Keyable: true, Storable: true},
	dg.Attribute{Name: PushAttr, Short: "psh", Type: dg.AttrBool, Default: true, Keyable: true, Storable: true},
	dg.Attribute{Name: PullAttr, Short: "pll", Type: dg.AttrBool, Default: true, Keyable: true, Storable: true},
	// lastPosition carries the previous result into the next evaluation. It affects nothing so
	// that writing it from compute never dirties the output.
	dg.Attribute{Name: LastPositionAttr, Short: "lp", Type: dg.AttrVector, Hidden: true, Storable: true},
).
	Affects(InTimeAttr, ConstraintTranslateAttr).
	Affects(StartFrameAttr, ConstraintTranslateAttr).
	Affects(DistanceAttr, ConstraintTranslateAttr).
	Affects(TargetWorldMatrixAttr, ConstraintTranslateAttr).
	Affects(ConstraintParentMatrixAttr, ConstraintTranslateAttr).
	Affects(StartPositionAttr, ConstraintTranslateAttr).
	Affects(PushAttr, ConstraintTranslateAttr).
	Affects(PullAttr, ConstraintTranslateAttr)

// Schema returns the static attribute table shared by every constraint node.
func Schema() *dg.Schema {
	return schema
}

func init() {
	dg.RegisterNodeType(dg.NodeType{
		Name:    TypeName,
		ID:      TypeID,
		Schema:  schema,
		Creator: func() dg.Node { return &node{} },
	})
}
