// Package stream implements the Stream/Filter façade from spec.md
// §4.9: a user-facing object that owns exactly one graph node,
// connects it to a peer port, and exposes dequeue/queue buffer
// operations plus a per-type callback registration API, simplified to
// this package's narrower event set.
package stream

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rtgraph/rtgraph/bufferpool"
	"github.com/rtgraph/rtgraph/graph"
	"github.com/rtgraph/rtgraph/props"
)

// ConnectFlags is the bitmask accepted by Stream.Connect, spec.md §4.9.
type ConnectFlags uint32

const (
	Autoconnect ConnectFlags = 1 << iota
	MapBuffers
	RTProcess
	AllocBuffers
	InactiveStart
	Driver
	Async
	Exclusive
	NoConvert
)

// EventType enumerates the events a Stream delivers to its callbacks,
// spec.md §4.9.
type EventType string

const (
	EventStateChanged EventType = "stream.state_changed"
	EventParamChanged EventType = "stream.param_changed"
	EventAddBuffer    EventType = "stream.add_buffer"
	EventRemoveBuffer EventType = "stream.remove_buffer"
	EventProcess      EventType = "stream.process"
	EventDrained      EventType = "stream.drained"
	EventTriggerDone  EventType = "stream.trigger_done"
)

// Event is delivered to registered callbacks.
type Event struct {
	Stream *Stream
	Type   EventType

	OldState graph.State
	NewState graph.State

	Buffer *bufferpool.Buffer
	Param  string
}

// Handler pairs a callback with the event types it wants to observe;
// an empty Types means "every event" (pipe.Handler's wildcard idiom).
type Handler struct {
	Func  func(*Event)
	Types []EventType
}

// Stream owns exactly one graph node with a single direction and one
// or more ports, spec.md §4.9.
type Stream struct {
	log *zerolog.Logger

	mu        sync.Mutex
	Node      *graph.Node
	direction graph.Direction
	flags     ConnectFlags
	pool      *bufferpool.Pool

	handlers map[EventType][]*Handler
	wild     []*Handler
}

// NewSimple constructs a Stream around a fresh node in the given
// direction, owned and scheduled by impl. p may be nil; it is passed
// through to the underlying node for property-driven configuration
// such as node.suspend.timeout (spec.md §4.7).
func NewSimple(name string, direction graph.Direction, impl graph.Implementation, p *props.Properties, log *zerolog.Logger) *Stream {
	node := graph.NewNode(0, name, impl, p, log)
	return &Stream{
		log:       log,
		Node:      node,
		direction: direction,
		handlers:  make(map[EventType][]*Handler),
	}
}

// AddCallback registers fn for the given event types (or every event,
// if types is empty).
func (s *Stream) AddCallback(fn func(*Event), types ...EventType) *Handler {
	h := &Handler{Func: fn, Types: types}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(types) == 0 {
		s.wild = append(s.wild, h)
		return h
	}
	for _, t := range types {
		s.handlers[t] = append(s.handlers[t], h)
	}
	return h
}

// emit synchronously delivers ev to every matching handler, run in the
// caller's goroutine — spec.md §4.9 says RTProcess-flagged process
// callbacks run on the data loop thread, which is exactly the thread
// the scheduler calls this from; non-RTProcess delivery is the
// engine's responsibility to post to the user/control loop instead.
func (s *Stream) emit(ev *Event) {
	ev.Stream = s
	s.mu.Lock()
	hs := append([]*Handler(nil), s.handlers[ev.Type]...)
	hs = append(hs, s.wild...)
	s.mu.Unlock()

	for _, h := range hs {
		h.Func(ev)
	}
}

// Connect creates the stream's single port in its direction and links
// it to peer, which must be in the opposite direction. When flags
// includes AllocBuffers or MapBuffers, it builds the link's buffer
// pool from params and fires one EventAddBuffer per buffer.
func (s *Stream) Connect(g *graph.Graph, peer *graph.Port, flags ConnectFlags, params bufferpool.Params) (*graph.Port, error) {
	if peer.Direction == s.direction {
		return nil, fmt.Errorf("stream: peer must be in the opposite direction")
	}

	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
	s.Node.SetOnStateChange(s.onNodeStateChange)

	if s.Node.Graph == nil {
		s.Node.ID = g.NodeAdd(s.Node)
	}

	own := g.PortAdd(s.Node, 0, s.direction, 0)

	var out, in *graph.Port
	if s.direction == graph.Output {
		out, in = own, peer
	} else {
		out, in = peer, own
	}
	if _, err := g.Link(out, in); err != nil {
		return nil, err
	}

	if err := s.Node.MarkSuspended(); err != nil {
		return nil, err
	}

	if flags&(AllocBuffers|MapBuffers) != 0 {
		pool := bufferpool.New()
		if err := pool.Build(params); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.pool = pool
		own.Pool = pool
		s.mu.Unlock()

		for i := 0; i < pool.NumBuffers(); i++ {
			b, _ := pool.Buffer(i)
			s.emit(&Event{Type: EventAddBuffer, Buffer: b})
		}
	}

	if err := s.Node.MarkIdle(); err != nil {
		return nil, err
	}

	if flags&InactiveStart == 0 {
		if err := s.Node.Start(); err != nil {
			return nil, err
		}
	}

	return own, nil
}

// onNodeStateChange is the Node hook wired up in Connect: it mirrors
// every state transition as an EventStateChanged, and releases the
// stream's buffer pool whenever the node reaches Suspended — whether
// that happens via an explicit Disconnect or the node's own
// idle-suspend timer (spec.md §4.7).
func (s *Stream) onNodeStateChange(old, next graph.State) {
	s.emit(&Event{Type: EventStateChanged, OldState: old, NewState: next})
	if next == graph.Suspended {
		s.releasePool()
	}
}

// releasePool closes and clears the stream's buffer pool, if any. Safe
// to call more than once.
func (s *Stream) releasePool() {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
}

// DequeueBuffer returns the next free buffer, or ok=false if none is
// available. The caller must not block waiting for one (spec.md §4.9).
func (s *Stream) DequeueBuffer() (*bufferpool.Buffer, bool) {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if pool == nil {
		return nil, false
	}
	return pool.Dequeue()
}

// QueueBuffer returns buf to the pool so the peer may consume it or
// the pool may recycle it, firing EventTriggerDone.
func (s *Stream) QueueBuffer(buf *bufferpool.Buffer) error {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()
	if pool == nil {
		return fmt.Errorf("stream: not connected")
	}
	if err := pool.Queue(buf); err != nil {
		return err
	}
	s.emit(&Event{Type: EventTriggerDone, Buffer: buf})
	return nil
}

// Disconnect flushes the node's buffers and suspends it. Both
// transitions run through the node's state-change hook, which emits
// the matching EventStateChanged and releases the pool once Suspended
// is reached (spec.md §4.7's Idle -> Suspended transition).
func (s *Stream) Disconnect() error {
	if s.Node.State() == graph.Running {
		if err := s.Node.Pause(); err != nil {
			return err
		}
	}
	return s.Node.Flush()
}
