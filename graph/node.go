package graph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rtgraph/rtgraph/props"
	"github.com/rs/zerolog"
)

// State is a Node's lifecycle state, spec.md §4.7.
type State int

const (
	Error State = iota - 1
	Creating
	Suspended
	Idle
	Running
)

func (s State) String() string {
	switch s {
	case Error:
		return "error"
	case Creating:
		return "creating"
	case Suspended:
		return "suspended"
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Command is a control message a Node accepts while Running,
// spec.md §4.7.
type Command int

const (
	CommandPause Command = iota
	CommandFlush
	CommandDrain
	CommandMarker
	CommandClockUpdate
)

// Implementation supplies the node-specific data-plane callbacks,
// mirroring original_source/src/pipewire/node.h's
// pw_node_implementation function table.
type Implementation interface {
	// ProcessInput is invoked by the scheduler when the node's input
	// ready counts reach its required counts.
	ProcessInput(n *Node) error
	// ProcessOutput is invoked by the scheduler to ask the node to
	// produce output.
	ProcessOutput(n *Node) error
}

// SchedulerStatus is the scheduler-private per-node status,
// spec.md §4.8, kept separate from the lifecycle State.
type SchedulerStatus int

const (
	StatusOk SchedulerStatus = iota
	StatusNeedBuffer
	StatusHaveBuffer
)

// Node abstracts one graph processing element, spec.md §3.
type Node struct {
	log *zerolog.Logger

	ID    uint32
	Name  string
	Props *props.Properties

	Graph *Graph
	Impl  Implementation

	mu    sync.Mutex
	state atomic.Int32

	ports [numDirections][]*Port

	// required/ready counts per direction, spec.md §3 and §4.8.
	required [numDirections]int
	ready    [numDirections]int

	schedStatus atomic.Int32 // SchedulerStatus
	errCount    int
	errWindow   time.Time

	suspendTimeout time.Duration // idle-suspend interval, spec.md §4.7, default 3s
	suspendTimer   *time.Timer
	suspendMu      sync.Mutex

	onStateChange func(old, next State)
}

// NewNode constructs a node in the Creating state. It is not part of
// any graph until Graph.NodeAdd is called.
func NewNode(id uint32, name string, impl Implementation, p *props.Properties, log *zerolog.Logger) *Node {
	if p == nil {
		p = props.New()
	}
	n := &Node{
		log:            log,
		ID:             id,
		Name:           name,
		Props:          p,
		Impl:           impl,
		suspendTimeout: p.GetDuration("node.suspend.timeout", 3*time.Second),
	}
	n.state.Store(int32(Creating))
	return n
}

// State returns the node's current lifecycle state.
func (n *Node) State() State { return State(n.state.Load()) }

// validTransitions encodes spec.md §4.7's state diagram, excluding the
// universal "* -> Error" edge which SetError always allows.
var validTransitions = map[State][]State{
	Creating:  {Suspended},
	Suspended: {Idle},
	Idle:      {Running, Suspended},
	Running:   {Idle},
}

// transition moves the node to next iff the edge is legal, cancelling
// any pending idle-suspend timer on any transition out of Idle. The
// state-change hook, if any, is invoked after n.mu is released so it
// may freely call back into Node methods.
func (n *Node) transition(next State) error {
	n.mu.Lock()

	cur := State(n.state.Load())
	ok := false
	for _, allowed := range validTransitions[cur] {
		if allowed == next {
			ok = true
			break
		}
	}
	if !ok {
		n.mu.Unlock()
		return ErrInvalidTransition
	}

	if cur == Idle {
		n.cancelIdleSuspend()
	}
	n.state.Store(int32(next))
	n.mu.Unlock()

	if n.log != nil {
		n.log.Debug().Uint32("node", n.ID).Str("from", cur.String()).Str("to", next.String()).Msg("node state changed")
	}

	if next == Idle {
		n.armIdleSuspend()
	}
	if n.onStateChange != nil {
		n.onStateChange(cur, next)
	}
	return nil
}

// SetOnStateChange registers fn to be called after every successful
// state transition, including ones triggered internally by the
// idle-suspend timer — this is how Stream keeps its event subscribers
// in sync without polling the node (spec.md §4.9's state_changed
// event).
func (n *Node) SetOnStateChange(fn func(old, next State)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onStateChange = fn
}

// MarkSuspended implements Creating -> Suspended, once all of the
// node's ports have been registered.
func (n *Node) MarkSuspended() error { return n.transition(Suspended) }

// MarkIdle implements Suspended -> Idle, once format/buffers are
// negotiated, and arms the idle-suspend timer.
func (n *Node) MarkIdle() error { return n.transition(Idle) }

// Start implements Idle -> Running.
func (n *Node) Start() error { return n.transition(Running) }

// Pause implements Running -> Idle.
func (n *Node) Pause() error { return n.transition(Idle) }

// Flush implements Idle -> Suspended (format/buffers released).
func (n *Node) Flush() error { return n.transition(Suspended) }

// SetError forces the node into the Error state from any state,
// spec.md's universal "* -> Error" edge.
func (n *Node) SetError(cause error) {
	n.mu.Lock()
	cur := State(n.state.Load())
	n.cancelIdleSuspend()
	n.state.Store(int32(Error))
	n.mu.Unlock()

	if n.log != nil {
		n.log.Warn().Uint32("node", n.ID).Err(cause).Msg("node entered error state")
	}
	if n.onStateChange != nil {
		n.onStateChange(cur, Error)
	}
}

// armIdleSuspend schedules an automatic Suspend after n.suspendTimeout
// of remaining Idle, spec.md §4.7. Any Start call cancels it.
func (n *Node) armIdleSuspend() {
	n.suspendMu.Lock()
	defer n.suspendMu.Unlock()
	if n.suspendTimeout <= 0 {
		return
	}
	n.suspendTimer = time.AfterFunc(n.suspendTimeout, func() {
		n.mu.Lock()
		still := State(n.state.Load()) == Idle
		n.mu.Unlock()
		if still {
			n.Flush()
		}
	})
}

func (n *Node) cancelIdleSuspend() {
	n.suspendMu.Lock()
	defer n.suspendMu.Unlock()
	if n.suspendTimer != nil {
		n.suspendTimer.Stop()
		n.suspendTimer = nil
	}
}

// Ports returns the node's ports in the given direction.
func (n *Node) Ports(d Direction) []*Port {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Port(nil), n.ports[d]...)
}

// addPort appends port to the node's list for its direction and bumps
// the required count unless the port is optional, spec.md §4.6.
func (n *Node) addPort(p *Port) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ports[p.Direction] = append(n.ports[p.Direction], p)
	if !p.Optional() {
		n.required[p.Direction]++
	}
}

func (n *Node) removePort(p *Port) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ps := n.ports[p.Direction]
	for i, q := range ps {
		if q == p {
			n.ports[p.Direction] = append(ps[:i], ps[i+1:]...)
			break
		}
	}
	if !p.Optional() && n.required[p.Direction] > 0 {
		n.required[p.Direction]--
	}
}

// Required returns the node's required-count for direction d.
func (n *Node) Required(d Direction) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.required[d]
}

// Ready returns the node's ready-count for direction d.
func (n *Node) Ready(d Direction) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready[d]
}

// SetReady overwrites the node's ready-count for direction d, used by
// the scheduler as ports become ready/unready over a cycle. It is a
// programming error for ready to exceed required (spec.md §3's graph
// invariant); callers are expected to enforce that, this just stores.
func (n *Node) SetReady(d Direction, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready[d] = count
}

// Triggered reports whether the node's ready count has reached its
// required count for direction d — the scheduler's trigger condition.
func (n *Node) Triggered(d Direction) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ready[d] >= n.required[d]
}

// SchedStatus returns the node's scheduler-private status.
func (n *Node) SchedStatus() SchedulerStatus { return SchedulerStatus(n.schedStatus.Load()) }

// SetSchedStatus updates the node's scheduler-private status.
func (n *Node) SetSchedStatus(s SchedulerStatus) { n.schedStatus.Store(int32(s)) }

// RecordCycleError resets the node's I/O areas after a failed cycle
// callback, and puts the node into the Error state once more than 3
// errors fall within a 1s window. The node is not moved to Suspended.
func (n *Node) RecordCycleError() {
	n.mu.Lock()
	now := time.Now()
	if now.Sub(n.errWindow) > time.Second {
		n.errWindow = now
		n.errCount = 0
	}
	n.errCount++
	count := n.errCount
	n.mu.Unlock()

	for _, p := range n.Ports(Input) {
		p.IO.Reset()
	}
	for _, p := range n.Ports(Output) {
		p.IO.Reset()
	}

	if count > 3 {
		n.SetError(ErrInvalidTransition)
	}
}

// HandleCommand applies a control command while Running, spec.md §4.7.
func (n *Node) HandleCommand(cmd Command, clock *ClockUpdate) error {
	switch cmd {
	case CommandPause:
		return n.Pause()
	case CommandFlush:
		return n.Flush()
	case CommandDrain, CommandMarker:
		// handled by the scheduler inserting a marker into the data
		// stream; the node itself has no state change to make here.
		return nil
	case CommandClockUpdate:
		if clock == nil {
			return nil
		}
		for _, p := range n.Ports(Output) {
			p.IO.Clock.Store(clock)
		}
		return nil
	default:
		return ErrInvalidTransition
	}
}
