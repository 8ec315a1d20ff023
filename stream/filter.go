package stream

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rtgraph/rtgraph/graph"
	"github.com/rtgraph/rtgraph/props"
)

// Filter generalises Stream to a node with ports in both directions,
// spec.md §4.9's filter variant.
type Filter struct {
	*Stream
	ports map[uint32]*graph.Port // port id -> port, across both directions
}

// NewFilter constructs a Filter around a fresh node; AddPort must be
// called before Connect to give it its input/output ports.
func NewFilter(name string, impl graph.Implementation, p *props.Properties, log *zerolog.Logger) *Filter {
	node := graph.NewNode(0, name, impl, p, log)
	return &Filter{
		Stream: &Stream{
			log:      log,
			Node:     node,
			handlers: make(map[EventType][]*Handler),
		},
		ports: make(map[uint32]*graph.Port),
	}
}

// AddPort adds one more port to the filter's node in direction d and
// returns it. Port ids are assigned in order of addition, unique within
// the filter.
func (f *Filter) AddPort(g *graph.Graph, d graph.Direction, flags graph.PortFlags) *graph.Port {
	id := uint32(len(f.ports))
	p := g.PortAdd(f.Node, id, d, flags)
	f.ports[id] = p
	return p
}

// Port returns the filter's port by id.
func (f *Filter) Port(id uint32) (*graph.Port, bool) {
	p, ok := f.ports[id]
	return p, ok
}

// GetDSPBuffer is a shortcut for dequeue-get-data-requeue of a single
// DSP frame on the given port, spec.md §4.9.
func (f *Filter) GetDSPBuffer(port *graph.Port, nSamples int) ([]byte, error) {
	if port.Pool == nil {
		return nil, fmt.Errorf("stream: filter port has no buffer pool")
	}
	b, ok := port.Pool.Dequeue()
	if !ok {
		return nil, nil
	}
	if len(b.Datas) == 0 {
		return nil, fmt.Errorf("stream: buffer has no data plane")
	}
	data := b.Datas[0].Data
	if nSamples >= 0 && nSamples*4 <= len(data) { // 4 bytes/sample (float32 DSP format)
		data = data[:nSamples*4]
	}

	if err := port.Pool.Queue(b); err != nil {
		return nil, err
	}
	return data, nil
}
