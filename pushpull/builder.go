package pushpull

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/pushpull/dg"
	"go.viam.com/pushpull/logging"
)

// Host is what Build needs from the scene it wires a constraint into. *dg.Graph implements it.
type Host interface {
	Selection() []string
	IsTransform(name string) bool
	WorldTranslation(name string) (r3.Vector, error)
	LocalTranslation(name string) (r3.Vector, error)
	CurrentTime() float64
	TimeSource() (dg.Plug, error)
	NewModifier() *dg.Modifier
}

var _ Host = (*dg.Graph)(nil)

// Options are the optional settings of a new constraint. Nil fields take their defaults.
type Options struct {
	// Name of the created node. Empty picks pushPullConstraintN.
	Name string
	// Distance defaults to the world-space distance between target and constrained at build time.
	Distance *float64
	// StartFrame defaults to the host's current time.
	StartFrame *float64
	// StartPosition defaults to the constrained object's current translate.
	StartPosition *r3.Vector
	// SkipAxes lists translate channels (x, y or z) the constraint must not drive.
	SkipAxes []string
	Push     *bool
	Pull     *bool
}

// ValidationError is returned by Build when its arguments are unusable. Nothing has been changed in
// the host when it is returned.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// Settings are the fully resolved settings of a constraint.
type Settings struct {
	Config
	// Name is the node name that was asked for.
	Name     string
	SkipAxes []string
}

// Construction records what Build created so that it can be removed by Unbuild and created again
// by Rebuild.
type Construction struct {
	Node        string
	Target      string
	Constrained string
	Settings    Settings
	// Connections are the edges Build introduced, inputs first.
	Connections []dg.Connection
	// PriorTranslate is the constrained object's translate before the constraint drove it.
	PriorTranslate r3.Vector
}

var axisIndex = map[string]int{"x": 0, "y": 1, "z": 2}

// Build creates a constraint node that keeps constrained at a distance from target. refs names the
// target then the constrained transform; when empty the host's selection is used instead.
//
// Every edit is made through a single modifier: on failure, nothing is left behind.
func Build(host Host, refs []string, opts Options, logger logging.Logger) (*Construction, error) {
	if len(refs) == 0 {
		refs = host.Selection()
	}
	if len(refs) != 2 {
		return nil, newValidationError("objects", errors.Errorf("two transforms required, got %d", len(refs)))
	}
	target, constrained := refs[0], refs[1]
	if !host.IsTransform(target) {
		return nil, newValidationError("target", errors.Errorf("%q is not a transform", target))
	}
	if !host.IsTransform(constrained) {
		return nil, newValidationError("constrained", errors.Errorf("%q is not a transform", constrained))
	}
	if target == constrained {
		return nil, newValidationError("objects", errors.Errorf("%q cannot be constrained to itself", target))
	}

	skip, err := normalizeAxes(opts.SkipAxes)
	if err != nil {
		return nil, err
	}

	settings := Settings{
		Name:     opts.Name,
		SkipAxes: skip,
		Config: Config{
			StartFrame: host.CurrentTime(),
			Push:       true,
			Pull:       true,
		},
	}
	if opts.StartFrame != nil {
		settings.StartFrame = *opts.StartFrame
	}
	if opts.Push != nil {
		settings.Push = *opts.Push
	}
	if opts.Pull != nil {
		settings.Pull = *opts.Pull
	}
	if opts.StartPosition != nil {
		settings.StartPosition = *opts.StartPosition
	} else if settings.StartPosition, err = host.LocalTranslation(constrained); err != nil {
		return nil, err
	}
	if opts.Distance != nil {
		settings.Distance = *opts.Distance
	} else {
		targetPos, err := host.WorldTranslation(target)
		if err != nil {
			return nil, err
		}
		constrainedPos, err := host.WorldTranslation(constrained)
		if err != nil {
			return nil, err
		}
		settings.Distance = constrainedPos.Sub(targetPos).Norm()
	}
	if err := settings.Config.Validate(); err != nil {
		return nil, newValidationError("options", err)
	}

	c, err := apply(host, target, constrained, settings)
	if err != nil {
		return nil, err
	}
	logger.Infow("created constraint",
		"node", c.Node,
		"target", target,
		"constrained", constrained,
		"distance", settings.Distance,
		"startFrame", settings.StartFrame,
		"skip", skip,
	)
	return c, nil
}

// normalizeAxes lower-cases, checks and de-duplicates skip axes.
func normalizeAxes(axes []string) ([]string, error) {
	if len(axes) > 3 {
		return nil, newValidationError("skip", errors.Errorf("at most 3 axes can be skipped, got %d", len(axes)))
	}
	out := lo.Uniq(lo.Map(axes, func(a string, _ int) string {
		return strings.ToLower(strings.TrimSpace(a))
	}))
	for _, a := range out {
		if _, ok := axisIndex[a]; !ok {
			return nil, newValidationError("skip", errors.Errorf("unknown axis %q, expected x, y or z", a))
		}
	}
	sort.Strings(out)
	return out, nil
}

// apply performs the graph edits for already resolved settings.
func apply(host Host, target, constrained string, settings Settings) (*Construction, error) {
	timeSource, err := host.TimeSource()
	if err != nil {
		return nil, err
	}
	prior, err := host.LocalTranslation(constrained)
	if err != nil {
		return nil, err
	}

	mod := host.NewModifier()
	name, err := mod.CreateNode(TypeName, settings.Name)
	if err != nil {
		return nil, err
	}
	plug := func(attr string) dg.Plug { return dg.NewPlug(name, attr) }

	conns := []dg.Connection{
		{Src: dg.NewPlug(target, dg.TransformWorldMatrixAttr), Dst: plug(TargetWorldMatrixAttr)},
		{Src: dg.NewPlug(constrained, dg.TransformParentMatrixAttr), Dst: plug(ConstraintParentMatrixAttr)},
		{Src: timeSource, Dst: plug(InTimeAttr)},
	}
	if len(settings.SkipAxes) == 0 {
		conns = append(conns, dg.Connection{
			Src: plug(ConstraintTranslateAttr),
			Dst: dg.NewPlug(constrained, dg.TransformTranslateAttr),
		})
	} else {
		for _, axis := range []string{"X", "Y", "Z"} {
			if lo.Contains(settings.SkipAxes, strings.ToLower(axis)) {
				continue
			}
			conns = append(conns, dg.Connection{
				Src: plug(ConstraintTranslateAttr + axis),
				Dst: dg.NewPlug(constrained, dg.TransformTranslateAttr+axis),
			})
		}
	}

	for _, c := range conns[:3] {
		mod.Connect(c.Src, c.Dst)
	}
	mod.SetValue(plug(DistanceAttr), settings.Distance)
	mod.SetValue(plug(StartFrameAttr), settings.StartFrame)
	mod.SetValue(plug(StartPositionAttr), settings.StartPosition)
	mod.SetValue(plug(PushAttr), settings.Push)
	mod.SetValue(plug(PullAttr), settings.Pull)
	mod.SetValue(plug(LastPositionAttr), settings.StartPosition)
	mod.SetValue(plug(ConstraintTranslateAttr), settings.StartPosition)
	for _, c := range conns[3:] {
		mod.Connect(c.Src, c.Dst)
	}
	if err := mod.DoIt(); err != nil {
		return nil, errors.Wrapf(err, "constraining %q to %q", constrained, target)
	}

	return &Construction{
		Node:           name,
		Target:         target,
		Constrained:    constrained,
		Settings:       settings,
		Connections:    conns,
		PriorTranslate: prior,
	}, nil
}

// Unbuild deletes the constraint node with all of its connections and puts back the translate
// channels it drove.
func Unbuild(host Host, c *Construction) error {
	mod := host.NewModifier()
	mod.DeleteNode(c.Node)
	if len(c.Settings.SkipAxes) == 0 {
		mod.SetValue(dg.NewPlug(c.Constrained, dg.TransformTranslateAttr), c.PriorTranslate)
	} else {
		prior := [3]float64{c.PriorTranslate.X, c.PriorTranslate.Y, c.PriorTranslate.Z}
		for i, axis := range []string{"X", "Y", "Z"} {
			if lo.Contains(c.Settings.SkipAxes, strings.ToLower(axis)) {
				continue
			}
			mod.SetValue(dg.NewPlug(c.Constrained, dg.TransformTranslateAttr+axis), prior[i])
		}
	}
	return errors.Wrapf(mod.DoIt(), "removing %q", c.Node)
}

// Rebuild creates the constraint described by c again, under the same node name when it is free,
// with the settings resolved when it was first built. The returned Construction replaces c.
func Rebuild(host Host, c *Construction) (*Construction, error) {
	settings := c.Settings
	settings.Name = c.Node
	return apply(host, c.Target, c.Constrained, settings)
}
