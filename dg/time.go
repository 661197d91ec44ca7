package dg

import (
	"github.com/pkg/errors"
)

// TimeTypeName is the registered type name of time nodes.
const TimeTypeName = "time"

const timeOutAttr = "outTime"

var timeSchema = NewSchema(
	Attribute{Name: timeOutAttr, Short: "o", Type: AttrTime, Default: 1.0, Storable: true},
)

type timeNode struct{}

// Compute is never reached: outTime is set, not computed.
func (timeNode) Compute(Plug, *DataBlock) error {
	return ErrUnknownParameter
}

func init() {
	RegisterNodeType(NodeType{
		Name:    TimeTypeName,
		ID:      0x54494d45,
		Schema:  timeSchema,
		Creator: func() Node { return timeNode{} },
	})
}

// SetCurrentTime moves the global time. Every time node's outTime is updated, dirtying everything
// downstream.
func (g *Graph) SetCurrentTime(frame float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentTime = frame
	for _, name := range g.nodesOfType(TimeTypeName) {
		if err := g.setValue(g.mustRef(name, timeOutAttr), frame); err != nil {
			return err
		}
	}
	return nil
}

// CurrentTime returns the global time in frames.
func (g *Graph) CurrentTime() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentTime
}

// TimeSource returns the outTime plug of the first time node, by name.
func (g *Graph) TimeSource() (Plug, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := g.nodesOfType(TimeTypeName)
	if len(names) == 0 {
		return Plug{}, errors.WithStack(ErrNoTimeSource)
	}
	return Plug{Node: names[0], Attr: timeOutAttr}, nil
}
