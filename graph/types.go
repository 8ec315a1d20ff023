// Package graph implements the realtime media graph data model from
// spec.md §3/§4.6/§4.7: nodes, ports, links and shared I/O areas, plus
// the node lifecycle state machine. The scheduler that drives this
// graph lives in package scheduler; this package only holds the graph
// shape and its structural invariants (DAG-ness, peer reciprocity,
// shared I/O areas, ready<=required).
package graph

import (
	"sync/atomic"

	"github.com/rtgraph/rtgraph/bufferpool"
)

// Direction is Input or Output, spec.md §3's Port direction.
type Direction int

const (
	Input Direction = iota
	Output
	numDirections
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Input {
		return Output
	}
	return Input
}

// PortFlags is a bitmask of port attributes, spec.md §3.
type PortFlags uint32

const (
	PortOptional        PortFlags = 0x01
	PortCanAllocBuffers PortFlags = 0x02
	PortInPlace         PortFlags = 0x04
	PortNoRefCounting   PortFlags = 0x08
	PortPhysical        PortFlags = 0x10
	PortTerminal        PortFlags = 0x20
	PortDynamic         PortFlags = 0x40
)

// IOStatus is the scheduler's primary edge signal, spec.md §3.
type IOStatus uint32

const (
	IOStatusOK IOStatus = iota
	IOStatusNeedBuffer
	IOStatusHaveBuffer
	IOStatusFormatChanged
)

func (s IOStatus) String() string {
	switch s {
	case IOStatusOK:
		return "ok"
	case IOStatusNeedBuffer:
		return "need-buffer"
	case IOStatusHaveBuffer:
		return "have-buffer"
	case IOStatusFormatChanged:
		return "format-changed"
	default:
		return "unknown"
	}
}

// BufferIDInvalid marks an I/O area as not currently referencing a
// buffer.
const BufferIDInvalid uint32 = 0xFFFF_FFFF

// IOArea is the small structure shared between a linked port pair: the
// producer publishes Status/BufferID with release semantics, the
// consumer observes them with acquire semantics (spec.md §4.2's
// release/acquire discipline, reused here for I/O area publication per
// §5's "I/O area publications use release/acquire atomics").
type IOArea struct {
	status   atomic.Uint32
	bufferID atomic.Uint32

	// Clock, when non-nil, is the last ClockUpdate observed by the
	// node that owns this area (spec.md §4.7).
	Clock atomic.Pointer[ClockUpdate]
}

// NewIOArea returns an I/O area in the OK status with no buffer.
func NewIOArea() *IOArea {
	io := &IOArea{}
	io.bufferID.Store(BufferIDInvalid)
	return io
}

// Status reads the area's status with acquire semantics.
func (io *IOArea) Status() IOStatus { return IOStatus(io.status.Load()) }

// SetStatus publishes a new status with release semantics.
func (io *IOArea) SetStatus(s IOStatus) { io.status.Store(uint32(s)) }

// BufferID reads the area's buffer id with acquire semantics.
func (io *IOArea) BufferID() uint32 { return io.bufferID.Load() }

// SetBufferID publishes a new buffer id with release semantics.
func (io *IOArea) SetBufferID(id uint32) { io.bufferID.Store(id) }

// Reset returns the area to its initial OK/no-buffer state, used when a
// node errors out mid-cycle so its peers stop blocking on it
// (spec.md §4.8's failure semantics).
func (io *IOArea) Reset() {
	io.status.Store(uint32(IOStatusOK))
	io.bufferID.Store(BufferIDInvalid)
}

// ClockUpdate is the advisory driver-clock mapping command from
// spec.md §4.7, supplemented from original_source's
// spa/include/spa/command-node.h SPA_NODE_COMMAND_ClockUpdate payload.
type ClockUpdate struct {
	Rate          uint32
	Ticks         uint64
	MonotonicTime int64
	Offset        int64
	Scale         float64
	State         IOStatus
	Flags         uint32
	Latency       int64
}

// Port is a directional attachment point on a Node.
type Port struct {
	ID        uint32
	Direction Direction
	Flags     PortFlags
	Node      *Node

	IO   *IOArea
	Peer *Port

	Pool *bufferpool.Pool // set once format/buffer negotiation completes
}

// Linked reports whether the port currently has a peer.
func (p *Port) Linked() bool { return p.Peer != nil }

// Optional reports whether the port is excluded from its node's
// required-count (spec.md §4.6's port_add rule).
func (p *Port) Optional() bool { return p.Flags&PortOptional != 0 }
