// Package pushpull implements a push/pull distance constraint: once the start frame is reached, a
// constrained point is kept from getting closer than (push) or farther than (pull) a fixed
// distance from a moving target, by projecting it onto the sphere of that radius around the
// target whenever the threshold is crossed.
//
// Evaluate is the per-frame update. The constraint node registered under TypeName wraps it for a
// dg.Graph, and Build wires a node between a target and a constrained transform.
package pushpull

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/pushpull/spatialmath"
)

// State is carried from one evaluation to the next.
type State struct {
	// LastPosition is the constrained point in its parent's space as of the previous evaluation.
	LastPosition r3.Vector
}

// Config holds the user settings of a constraint.
type Config struct {
	Distance      float64
	StartFrame    float64
	StartPosition r3.Vector
	Push          bool
	Pull          bool
}

// Validate ensures all parts of the config are valid.
func (cfg Config) Validate() error {
	if math.IsNaN(cfg.Distance) || math.IsInf(cfg.Distance, 0) {
		return errors.Errorf("distance must be finite, got %g", cfg.Distance)
	}
	if cfg.Distance < 0 {
		return errors.Errorf("distance cannot be negative, got %g", cfg.Distance)
	}
	if math.IsNaN(cfg.StartFrame) {
		return errors.New("startFrame cannot be NaN")
	}
	if !spatialmath.IsFiniteVector(cfg.StartPosition) {
		return errors.Errorf("startPosition must be finite, got %v", cfg.StartPosition)
	}
	return nil
}

// Inputs are the values read fresh for every evaluation.
type Inputs struct {
	CurrentTime            float64
	TargetWorldMatrix      spatialmath.Matrix
	ConstraintParentMatrix spatialmath.Matrix
}

// Output is the value written to the constrained transform, in its parent's space.
type Output struct {
	ConstraintTranslate r3.Vector
}

// Phase says which branch an evaluation took.
type Phase int

const (
	// PhaseInert means the current time is before the start frame and the point was reset.
	PhaseInert Phase = iota
	// PhaseDisabled means neither push nor pull is on and nothing changed.
	PhaseDisabled
	// PhaseWithinBand means the point was at an allowed distance and nothing changed.
	PhaseWithinBand
	// PhaseProjected means the point was moved onto the sphere around the target.
	PhaseProjected
	// PhaseDegenerate means a move was due but the point sits exactly on the target, so there is
	// no direction to move along. Nothing changed.
	PhaseDegenerate
)

func (p Phase) String() string {
	switch p {
	case PhaseInert:
		return "inert"
	case PhaseDisabled:
		return "disabled"
	case PhaseWithinBand:
		return "within band"
	case PhaseProjected:
		return "projected"
	case PhaseDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Result is the outcome of one evaluation.
type Result struct {
	Output Output
	State  State
	Phase  Phase
}

// Evaluate runs one frame of the constraint. prev is the output of the previous evaluation and is
// returned unchanged whenever the point does not move. The returned state must be passed to the
// next call.
//
// An error is only returned when a move is due and the parent matrix cannot be inverted; state and
// output are then left as they were.
func Evaluate(state State, cfg Config, in Inputs, prev Output) (Result, error) {
	unchanged := Result{Output: prev, State: state}

	if in.CurrentTime < cfg.StartFrame {
		return Result{
			Output: Output{ConstraintTranslate: cfg.StartPosition},
			State:  State{LastPosition: cfg.StartPosition},
			Phase:  PhaseInert,
		}, nil
	}

	if !cfg.Push && !cfg.Pull {
		unchanged.Phase = PhaseDisabled
		return unchanged, nil
	}

	lastWorld := in.ConstraintParentMatrix.TransformPoint(state.LastPosition)
	targetPos := in.TargetWorldMatrix.Translation()
	relative := lastWorld.Sub(targetPos)
	current := relative.Norm()

	if !(cfg.Pull && current > cfg.Distance) && !(cfg.Push && current < cfg.Distance) {
		unchanged.Phase = PhaseWithinBand
		return unchanged, nil
	}
	if current == 0 {
		unchanged.Phase = PhaseDegenerate
		return unchanged, nil
	}

	inv, err := in.ConstraintParentMatrix.Inverse()
	if err != nil {
		return unchanged, errors.Wrap(err, "cannot map constrained position back to parent space")
	}
	world := targetPos.Add(relative.Normalize().Mul(cfg.Distance))
	local := inv.TransformPoint(world)
	return Result{
		Output: Output{ConstraintTranslate: local},
		State:  State{LastPosition: local},
		Phase:  PhaseProjected,
	}, nil
}
