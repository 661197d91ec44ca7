package scene

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/pushpull/dg"
	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/pushpull"
)

// Apply builds the scene into g: transforms and their hierarchy, animation curves, the current
// time and selection, then every constraint in order. It returns what each constraint created.
func Apply(g *dg.Graph, cfg *Config, logger logging.Logger) ([]*pushpull.Construction, error) {
	order, err := cfg.transformOrder()
	if err != nil {
		return nil, err
	}
	for _, t := range order {
		if err := addTransform(g, t); err != nil {
			return nil, errors.Wrapf(err, "transform %q", t.Name)
		}
	}

	for idx, curve := range cfg.Curves {
		if err := addCurve(g, curve); err != nil {
			return nil, errors.Wrapf(err, "curves.%d", idx)
		}
	}

	if cfg.Time != nil {
		if err := g.SetCurrentTime(*cfg.Time); err != nil {
			return nil, err
		}
	}
	if len(cfg.Selection) > 0 {
		if err := g.Select(cfg.Selection...); err != nil {
			return nil, err
		}
	}
	if len(cfg.LogConfig) > 0 {
		if err := logging.UpdateLoggerLevels(cfg.LogConfig, logger); err != nil {
			return nil, err
		}
	}

	constructions := make([]*pushpull.Construction, 0, len(cfg.Constraints))
	for idx, con := range cfg.Constraints {
		_, c, err := pushpull.Command(g, con.Objects, con.Flags, logger)
		if err != nil {
			return constructions, errors.Wrapf(err, "constraints.%d", idx)
		}
		constructions = append(constructions, c)
	}
	return constructions, nil
}

func addTransform(g *dg.Graph, t Transform) error {
	name, err := g.CreateNode(dg.TransformTypeName, t.Name)
	if err != nil {
		return err
	}
	if name != t.Name {
		if err := g.DeleteNode(name); err != nil {
			return err
		}
		return errors.Errorf("name %q is already in use", t.Name)
	}
	if err := g.SetValue(dg.NewPlug(name, dg.TransformTranslateAttr), t.Translate.R3()); err != nil {
		return err
	}
	if err := g.SetValue(dg.NewPlug(name, dg.TransformRotateAttr), t.Rotate.R3()); err != nil {
		return err
	}
	if t.Scale != nil {
		if err := g.SetValue(dg.NewPlug(name, dg.TransformScaleAttr), t.Scale.R3()); err != nil {
			return err
		}
	}
	if t.Parent != "" {
		return g.Parent(name, t.Parent)
	}
	return nil
}

// addCurve creates an animation curve named after the plug it drives and connects it to the
// graph's time.
func addCurve(g *dg.Graph, curve Curve) error {
	dst, err := dg.ParsePlug(curve.Plug)
	if err != nil {
		return err
	}
	timeSource, err := g.TimeSource()
	if err != nil {
		return err
	}
	name, err := g.CreateNode(dg.AnimCurveTypeName, fmt.Sprintf("%s_%s", dst.Node, dst.Attr))
	if err != nil {
		return err
	}
	n, err := g.Node(name)
	if err != nil {
		return err
	}
	curveNode, ok := n.(*dg.AnimCurve)
	if !ok {
		return errors.Errorf("%q is not an animation curve", name)
	}
	if err := curveNode.SetKeys(curve.Keys...); err != nil {
		return err
	}
	if err := g.MarkDirty(dg.NewPlug(name, dg.AnimCurveOutputAttr)); err != nil {
		return err
	}
	if err := g.Connect(timeSource, dg.NewPlug(name, dg.AnimCurveInputAttr)); err != nil {
		return err
	}
	return g.Connect(dg.NewPlug(name, dg.AnimCurveOutputAttr), dst)
}
