package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/pushpull/dg"
	"go.viam.com/pushpull/logging"
	"go.viam.com/pushpull/pushpull"
	"go.viam.com/pushpull/scene"
)

// Sample is where one constrained object sits at one frame.
type Sample struct {
	Frame       float64   `json:"frame"`
	Constraint  string    `json:"constraint"`
	Target      string    `json:"target"`
	Constrained string    `json:"constrained"`
	Local       r3.Vector `json:"local"`
	World       r3.Vector `json:"world"`
	// Distance is between the constrained object and its target in world space.
	Distance float64 `json:"distance"`
}

// Report is the JSON output of 'simulate'.
type Report struct {
	Samples []Sample  `json:"samples"`
	Summary []Summary `json:"summary"`
}

// newLogger returns the logger for an action and a func to call once the action is done.
func newLogger(c *cli.Context) (logging.Logger, func()) {
	level := logging.INFO
	if c.Bool(generalFlagDebug) {
		level = logging.DEBUG
	}
	logger := logging.NewWriterLogger("pushpull", level, c.App.ErrWriter)
	path := c.String(generalFlagLogFile)
	if path == "" {
		return logger, func() {}
	}
	file := logging.NewFileAppender(path)
	logger.AddAppender(file)
	return logger, func() {
		if err := file.Close(); err != nil {
			warningf(c.App.ErrWriter, "closing log file: %v", err)
		}
	}
}

// frames returns the evaluation times from start to end inclusive. Frames are computed from their
// index so that a fractional step does not drift.
func frames(start, end, step float64) ([]float64, error) {
	for i, v := range []float64{start, end, step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			flag := []string{simulateFlagStart, simulateFlagEnd, simulateFlagStep}[i]
			return nil, errors.Errorf("--%s must be a finite number, got %v", flag, v)
		}
	}
	if step <= 0 {
		return nil, errors.Errorf("--%s must be positive, got %v", simulateFlagStep, step)
	}
	if end < start {
		return nil, errors.Errorf("--%s (%v) is before --%s (%v)", simulateFlagEnd, end, simulateFlagStart, start)
	}
	count := int(math.Floor((end-start)/step+1e-9)) + 1
	return lo.Times(count, func(i int) float64 {
		return start + float64(i)*step
	}), nil
}

// Simulate builds the scene into a fresh graph and samples every constraint at each frame.
func Simulate(ctx context.Context, cfg *scene.Config, times []float64, logger logging.Logger) ([]Sample, error) {
	g := dg.NewGraph(logger.Sublogger("graph"))
	constructions, err := scene.Apply(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(times)*len(constructions))
	for _, frame := range times {
		select {
		case <-ctx.Done():
			return samples, ctx.Err()
		default:
		}
		if err := g.SetCurrentTime(frame); err != nil {
			return samples, err
		}
		for _, con := range constructions {
			s, err := sample(g, con, frame)
			if err != nil {
				return samples, errors.Wrapf(err, "frame %v", frame)
			}
			samples = append(samples, s)
		}
	}
	return samples, nil
}

func sample(g *dg.Graph, con *pushpull.Construction, frame float64) (Sample, error) {
	var err error
	local, lerr := g.LocalTranslation(con.Constrained)
	err = multierr.Append(err, lerr)
	world, werr := g.WorldTranslation(con.Constrained)
	err = multierr.Append(err, werr)
	target, terr := g.WorldTranslation(con.Target)
	err = multierr.Append(err, terr)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Frame:       frame,
		Constraint:  con.Node,
		Target:      con.Target,
		Constrained: con.Constrained,
		Local:       local,
		World:       world,
		Distance:    world.Sub(target).Norm(),
	}, nil
}

// SimulateAction is the corresponding action for 'simulate'.
func SimulateAction(c *cli.Context) error {
	logger, done := newLogger(c)
	defer done()
	cfg, err := scene.Read(c.String(sceneFlagPath), logger)
	if err != nil {
		return err
	}

	start := pushpull.DefaultStartFrame
	if cfg.Time != nil {
		start = *cfg.Time
	}
	if c.IsSet(simulateFlagStart) {
		start = c.Float64(simulateFlagStart)
	}
	end := start
	if c.IsSet(simulateFlagEnd) {
		end = c.Float64(simulateFlagEnd)
	}
	times, err := frames(start, end, c.Float64(simulateFlagStep))
	if err != nil {
		return err
	}

	samples, err := Simulate(c.Context, cfg, times, logger)
	if err != nil {
		return err
	}
	summary, err := Summarize(samples)
	if err != nil {
		return err
	}
	if path := c.String(simulateFlagPlot); path != "" {
		if err := plotDistances(samples, path); err != nil {
			return err
		}
		logger.Infow("saved plot", "path", path)
	}

	if c.Bool(generalFlagJSON) {
		out, err := json.MarshalIndent(Report{Samples: samples, Summary: summary}, "", "  ")
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", out)
		return nil
	}
	printf(c.App.Writer, "%s", samplesTable(samples))
	printf(c.App.Writer, "%s", summaryTable(summary))
	return nil
}

func samplesTable(samples []Sample) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Frame", "Constraint", "Target", "Constrained", "Local", "World", "Distance"})
	for _, s := range samples {
		t.AppendRow(table.Row{
			formatFloat(s.Frame),
			s.Constraint,
			s.Target,
			s.Constrained,
			formatVector(s.Local),
			formatVector(s.World),
			fmt.Sprintf("%.4f", s.Distance),
		})
	}
	return t.Render()
}

func summaryTable(summary []Summary) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Constraint", "Frames", "Min distance", "Max distance", "Mean distance"})
	for _, s := range summary {
		t.AppendRow(table.Row{
			s.Constraint,
			s.Frames,
			fmt.Sprintf("%.4f", s.MinDistance),
			fmt.Sprintf("%.4f", s.MaxDistance),
			fmt.Sprintf("%.4f", s.MeanDistance),
		})
	}
	return t.Render()
}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	if c.Bool(schemaFlagSceneFormat) {
		out, err := json.MarshalIndent(scene.JSONSchema(), "", "  ")
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", out)
		return nil
	}

	s := pushpull.Schema()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Short", "Type", "Default", "Flags", "Affects"})
	for _, a := range s.Attributes() {
		flags := lo.Filter([]string{
			lo.Ternary(a.Output, "output", ""),
			lo.Ternary(a.Hidden, "hidden", ""),
			lo.Ternary(a.Keyable, "keyable", ""),
			lo.Ternary(a.Storable, "storable", ""),
		}, func(f string, _ int) bool { return f != "" })
		t.AppendRow(table.Row{
			a.Name,
			a.Short,
			a.Type.String(),
			formatDefault(a.Default),
			fmt.Sprint(flags),
			fmt.Sprint(s.Affected(a.Name)),
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func formatVector(v r3.Vector) string {
	return fmt.Sprintf("X:%.4f, Y:%.4f, Z:%.4f", v.X, v.Y, v.Z)
}

func formatDefault(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
