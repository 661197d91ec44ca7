// Package scene describes a scene of transforms, animation and push/pull constraints in a YAML or
// JSON file, and builds it into a dg.Graph.
package scene

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/pushpull/dg"
	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/pushpull"
)

// Config is a whole scene.
type Config struct {
	Transforms  []Transform                   `json:"transforms"`
	Curves      []Curve                       `json:"curves,omitempty"`
	Time        *float64                      `json:"time,omitempty"`
	Selection   []string                      `json:"selection,omitempty"`
	Constraints []Constraint                  `json:"constraints,omitempty"`
	LogConfig   []logging.LoggerPatternConfig `json:"log,omitempty"`

	// FilePath is where the config was read from, if anywhere.
	FilePath string `json:"-"`
}

// Vector is a point or set of angles in a scene file.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// R3 converts the vector.
func (v Vector) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Transform is a transform node. Rotate is in degrees; a missing scale is 1 on every axis.
type Transform struct {
	Name      string  `json:"name"`
	Parent    string  `json:"parent,omitempty"`
	Translate Vector  `json:"translate"`
	Rotate    Vector  `json:"rotate"`
	Scale     *Vector `json:"scale,omitempty"`
}

// Curve animates one float plug, e.g. "ball.translateX", over time.
type Curve struct {
	Plug string   `json:"plug"`
	Keys []dg.Key `json:"keys"`
}

// Constraint runs the constraint command. Objects are the target then the constrained transform;
// when empty the selection is used. Flags take the command's long or short names.
type Constraint struct {
	Objects []string               `json:"objects,omitempty"`
	Flags   map[string]interface{} `json:"flags,omitempty"`
}

// Validate checks the scene and returns every problem found, combined.
func (c *Config) Validate() error {
	var err error
	names := map[string]int{}
	for idx, t := range c.Transforms {
		path := fmt.Sprintf("transforms.%d", idx)
		if t.Name == "" {
			err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "name"))
			continue
		}
		if prev, ok := names[t.Name]; ok {
			err = multierr.Append(err, utils.NewConfigValidationError(path,
				errors.Errorf("name %q already used by transforms.%d", t.Name, prev)))
			continue
		}
		names[t.Name] = idx
	}
	for idx, t := range c.Transforms {
		if t.Parent == "" {
			continue
		}
		path := fmt.Sprintf("transforms.%d", idx)
		if _, ok := names[t.Parent]; !ok {
			err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Errorf("unknown parent %q", t.Parent)))
		}
	}
	if _, cerr := c.transformOrder(); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	for idx, curve := range c.Curves {
		path := fmt.Sprintf("curves.%d", idx)
		if curve.Plug == "" {
			err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "plug"))
			continue
		}
		p, perr := dg.ParsePlug(curve.Plug)
		if perr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(path, perr))
			continue
		}
		if _, ok := names[p.Node]; !ok {
			err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Errorf("unknown transform %q", p.Node)))
		}
		if len(curve.Keys) == 0 {
			err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "keys"))
		}
	}

	for idx, name := range c.Selection {
		if _, ok := names[name]; !ok {
			err = multierr.Append(err, utils.NewConfigValidationError(fmt.Sprintf("selection.%d", idx),
				errors.Errorf("unknown transform %q", name)))
		}
	}

	for idx, con := range c.Constraints {
		path := fmt.Sprintf("constraints.%d", idx)
		if len(con.Objects) == 0 && len(c.Selection) == 0 {
			err = multierr.Append(err, utils.NewConfigValidationFieldRequiredError(path, "objects"))
		}
		for _, name := range con.Objects {
			if _, ok := names[name]; !ok {
				err = multierr.Append(err, utils.NewConfigValidationError(path, errors.Errorf("unknown transform %q", name)))
			}
		}
		if _, perr := pushpull.ParseFlags(con.Flags); perr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(path, perr))
		}
	}

	for idx, lc := range c.LogConfig {
		if !logging.ValidatePattern(lc.Pattern) {
			err = multierr.Append(err, utils.NewConfigValidationError(fmt.Sprintf("log.%d", idx),
				errors.Errorf("invalid logger pattern %q", lc.Pattern)))
		}
		if _, lerr := logging.LevelFromString(lc.Level); lerr != nil {
			err = multierr.Append(err, utils.NewConfigValidationError(fmt.Sprintf("log.%d", idx), lerr))
		}
	}
	return err
}

// transformOrder returns the transforms sorted so that every parent comes before its children,
// keeping file order otherwise.
func (c *Config) transformOrder() ([]Transform, error) {
	byName := map[string]Transform{}
	for _, t := range c.Transforms {
		byName[t.Name] = t
	}
	const (
		visiting = iota + 1
		done
	)
	state := map[string]int{}
	var order []Transform
	var visit func(t Transform) error
	visit = func(t Transform) error {
		switch state[t.Name] {
		case done:
			return nil
		case visiting:
			return errors.Errorf("transform %q is its own ancestor", t.Name)
		}
		state[t.Name] = visiting
		if parent, ok := byName[t.Parent]; ok && t.Parent != "" {
			if err := visit(parent); err != nil {
				return err
			}
		}
		state[t.Name] = done
		order = append(order, t)
		return nil
	}
	for _, t := range c.Transforms {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}
