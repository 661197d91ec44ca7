package cli

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Summary is how far one constrained object stayed from its target over a simulation.
type Summary struct {
	Constraint   string  `json:"constraint"`
	Frames       int     `json:"frames"`
	MinDistance  float64 `json:"min_distance"`
	MaxDistance  float64 `json:"max_distance"`
	MeanDistance float64 `json:"mean_distance"`
}

// constraintsOf returns the constraint names in the order they first appear.
func constraintsOf(samples []Sample) []string {
	return lo.Uniq(lo.Map(samples, func(s Sample, _ int) string { return s.Constraint }))
}

func samplesOf(samples []Sample, constraint string) []Sample {
	return lo.Filter(samples, func(s Sample, _ int) bool { return s.Constraint == constraint })
}

// Summarize returns one summary per constraint, in the order constraints were sampled.
func Summarize(samples []Sample) ([]Summary, error) {
	var out []Summary
	for _, name := range constraintsOf(samples) {
		distances := stats.Float64Data(lo.Map(samplesOf(samples, name), func(s Sample, _ int) float64 {
			return s.Distance
		}))
		minimum, err := distances.Min()
		if err != nil {
			return nil, errors.Wrapf(err, "summarizing %q", name)
		}
		maximum, err := distances.Max()
		if err != nil {
			return nil, errors.Wrapf(err, "summarizing %q", name)
		}
		mean, err := distances.Mean()
		if err != nil {
			return nil, errors.Wrapf(err, "summarizing %q", name)
		}
		out = append(out, Summary{
			Constraint:   name,
			Frames:       distances.Len(),
			MinDistance:  minimum,
			MaxDistance:  maximum,
			MeanDistance: mean,
		})
	}
	return out, nil
}

// plotDistances saves a line per constraint of its distance to target by frame. The image format
// follows the file extension.
func plotDistances(samples []Sample, path string) error {
	p := plot.New()
	p.Title.Text = "Distance to target"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Distance"

	var lines []interface{}
	for _, name := range constraintsOf(samples) {
		points := lo.Map(samplesOf(samples, name), func(s Sample, _ int) plotter.XY {
			return plotter.XY{X: s.Frame, Y: s.Distance}
		})
		lines = append(lines, name, plotter.XYs(points))
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return errors.Wrap(err, "plotting distances")
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, path), "saving plot to %q", path)
}
