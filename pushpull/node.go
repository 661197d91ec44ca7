package pushpull

import (
	"github.com/golang/geo/r3"

	"go.viam.com/pushpull/dg"
)

// node adapts Evaluate to a dg.Graph. Config and inputs come from attributes, State from the
// hidden lastPosition attribute, and the previous output from the stored constraintTranslate.
type node struct{}

// Compute implements dg.Node.
func (n *node) Compute(plug dg.Plug, data *dg.DataBlock) error {
	if schema.Root(plug.Attr) != ConstraintTranslateAttr {
		return dg.ErrUnknownParameter
	}

	cfg, err := readConfig(data)
	if err != nil {
		return err
	}
	stored, err := data.OutputValue(ConstraintTranslateAttr)
	if err != nil {
		return err
	}
	prev := Output{ConstraintTranslate: stored.(r3.Vector)}
	if err := cfg.Validate(); err != nil {
		// hold the last output while an animated setting is out of range
		data.Logger().Warnw("invalid settings, constraint left in place", "error", err)
		return n.writeOutput(data, prev)
	}
	now, err := data.Time(InTimeAttr)
	if err != nil {
		return err
	}
	var in Inputs
	in.CurrentTime = now
	// matrices are only needed past the start frame with push or pull on
	if now >= cfg.StartFrame && (cfg.Push || cfg.Pull) {
		if in.TargetWorldMatrix, err = data.Matrix(TargetWorldMatrixAttr); err != nil {
			return err
		}
		if in.ConstraintParentMatrix, err = data.Matrix(ConstraintParentMatrixAttr); err != nil {
			return err
		}
	}

	last, err := data.Vector(LastPositionAttr)
	if err != nil {
		return err
	}
	res, err := Evaluate(State{LastPosition: last}, cfg, in, prev)
	switch {
	case err != nil:
		data.Logger().Warnw("constraint left in place", "error", err)
	case res.Phase == PhaseDegenerate:
		data.Logger().Debugw("constrained point coincides with target, not moved", "time", now)
	}

	if res.State != (State{LastPosition: last}) {
		if err := data.SetOutput(LastPositionAttr, res.State.LastPosition); err != nil {
			return err
		}
	}
	return n.writeOutput(data, res.Output)
}

func (n *node) writeOutput(data *dg.DataBlock, out Output) error {
	if err := data.SetOutput(ConstraintTranslateAttr, out.ConstraintTranslate); err != nil {
		return err
	}
	data.SetClean(ConstraintTranslateAttr)
	return nil
}

func readConfig(data *dg.DataBlock) (Config, error) {
	var cfg Config
	var err error
	if cfg.Distance, err = data.Float(DistanceAttr); err != nil {
		return Config{}, err
	}
	if cfg.StartFrame, err = data.Float(StartFrameAttr); err != nil {
		return Config{}, err
	}
	if cfg.StartPosition, err = data.Vector(StartPositionAttr); err != nil {
		return Config{}, err
	}
	if cfg.Push, err = data.Bool(PushAttr); err != nil {
		return Config{}, err
	}
	if cfg.Pull, err = data.Bool(PullAttr); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
