package dg

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// AnimCurveTypeName is the registered type name of animation curves.
const AnimCurveTypeName = "animCurve"

// AnimCurve attribute names.
const (
	AnimCurveInputAttr  = "input"
	AnimCurveOutputAttr = "output"
)

var animCurveSchema = NewSchema(
	Attribute{Name: AnimCurveInputAttr, Short: "i", Type: AttrTime},
	Attribute{Name: AnimCurveOutputAttr, Short: "o", Type: AttrFloat, Output: true},
).Affects(AnimCurveInputAttr, AnimCurveOutputAttr)

// Key is one keyframe of an animation curve.
type Key struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// AnimCurve maps time to a float by linear interpolation between keys. Before the first key and
// after the last the end values are held.
type AnimCurve struct {
	mu   sync.Mutex
	keys []Key
}

// SetKeys replaces the keys. Keys are sorted by time; two keys at the same time are an error.
// A curve already in a graph needs its output dirtied with Graph.MarkDirty afterwards.
func (c *AnimCurve) SetKeys(keys ...Key) error {
	sorted := append([]Key(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Time == sorted[i-1].Time {
			return errors.Errorf("two keys at time %g", sorted[i].Time)
		}
	}
	c.mu.Lock()
	c.keys = sorted
	c.mu.Unlock()
	return nil
}

// Keys returns a copy of the keys, sorted by time.
func (c *AnimCurve) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Key(nil), c.keys...)
}

// Evaluate returns the curve value at t.
func (c *AnimCurve) Evaluate(t float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return 0
	}
	if t <= c.keys[0].Time {
		return c.keys[0].Value
	}
	last := c.keys[len(c.keys)-1]
	if t >= last.Time {
		return last.Value
	}
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i].Time > t })
	a, b := c.keys[i-1], c.keys[i]
	frac := (t - a.Time) / (b.Time - a.Time)
	return a.Value + frac*(b.Value-a.Value)
}

// Compute implements Node.
func (c *AnimCurve) Compute(plug Plug, data *DataBlock) error {
	if animCurveSchema.Root(plug.Attr) != AnimCurveOutputAttr {
		return ErrUnknownParameter
	}
	t, err := data.Time(AnimCurveInputAttr)
	if err != nil {
		return err
	}
	if err := data.SetOutput(AnimCurveOutputAttr, c.Evaluate(t)); err != nil {
		return err
	}
	data.SetClean(AnimCurveOutputAttr)
	return nil
}

func init() {
	RegisterNodeType(NodeType{
		Name:    AnimCurveTypeName,
		ID:      0x414e494d,
		Schema:  animCurveSchema,
		Creator: func() Node { return &AnimCurve{} },
	})
}
