// Package scheduler implements the pull-driven graph cycle from
// spec.md §4.8: one designated driver node triggers process_output on
// itself, triggering propagates downstream as peers' ready counts
// reach their required counts, and any node not triggered this cycle
// is carried on a pending list for a future cycle — the "newest"
// generation PipeWire itself shipped (graph-scheduler6.h), chosen
// per the Open Question discussion recorded in DESIGN.md.
package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/rtgraph/rtgraph/graph"
)

// CycleReport summarises one call to RunCycle, useful for tests and
// diagnostics.
type CycleReport struct {
	ProcessedInput  []uint32
	ProcessedOutput []uint32
	Pending         []uint32
	Xrun            bool
}

// Scheduler drives one Graph's cycles. It is intended to be driven
// from the data loop thread (spec.md §5); RunCycle must not be called
// concurrently from two goroutines.
type Scheduler struct {
	log *zerolog.Logger
	g   *graph.Graph

	mu      sync.Mutex
	pending map[uint32]*graph.Node

	cycling atomic.Bool
	xruns   atomic.Uint64
}

// New returns a Scheduler driving g.
func New(g *graph.Graph, log *zerolog.Logger) *Scheduler {
	return &Scheduler{
		g:       g,
		log:     log,
		pending: make(map[uint32]*graph.Node),
	}
}

// Xruns returns the number of overrun cycles observed so far.
func (s *Scheduler) Xruns() uint64 { return s.xruns.Load() }

// Pending returns the node ids currently sitting in the pending list.
func (s *Scheduler) Pending() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// RunCycle runs one scheduler cycle starting from the graph's driver
// node. If a previous cycle is still marked in-progress (the driver
// advanced before the scheduler finished, spec.md §4.8's overrun case),
// this call is still accepted: an xrun is recorded and the new cycle
// starts from the graph's current state.
func (s *Scheduler) RunCycle() (*CycleReport, error) {
	driver := s.g.Driver()
	if driver == nil {
		return nil, graph.ErrNoDriver
	}

	report := &CycleReport{}
	if s.cycling.Swap(true) {
		s.xruns.Add(1)
		report.Xrun = true
		if s.log != nil {
			s.log.Warn().Msg("scheduler xrun: driver advanced before previous cycle finished")
		}
	}
	defer s.cycling.Store(false)

	c := &cycle{
		s:            s,
		processedIn:  make(map[uint32]bool),
		processedOut: make(map[uint32]bool),
		report:       report,
	}

	// Step 1: the driver is always asked to produce output first — this
	// is the push half, for a driver that is itself source-like.
	c.processOutput(driver)

	// Step 2: a driver with Input ports is a sink pulling from an
	// upstream producer (spec.md §4.8's canonical scenario), so it also
	// needs the pull half: walk its inputs' peers and trigger their
	// process_output before the driver can ever be triggered on its own
	// ready count, mirroring graph-scheduler6.h's
	// spa_graph_impl_need_input.
	if len(driver.Ports(graph.Input)) > 0 {
		c.needInput(driver)
	}

	// Revisit anything left pending from a prior cycle before draining
	// the queue seeded by the driver's immediate peers — a pending
	// node's buffers are still sitting in its I/O area, so it may now
	// be triggered without any fresh upstream activity.
	s.mu.Lock()
	for _, n := range s.pending {
		c.enqueue(n)
	}
	s.mu.Unlock()

	c.drain()

	s.mu.Lock()
	s.pending = c.stillPending
	s.mu.Unlock()
	for id := range c.stillPending {
		report.Pending = append(report.Pending, id)
	}

	return report, nil
}

// cycle holds the per-RunCycle bookkeeping that enforces spec.md
// §4.8's "at most once per direction per cycle" guarantee.
type cycle struct {
	s            *Scheduler
	queue        []*graph.Node
	queued       map[uint32]bool
	processedIn  map[uint32]bool
	processedOut map[uint32]bool
	neededIn     map[uint32]bool
	stillPending map[uint32]*graph.Node
	report       *CycleReport
}

func (c *cycle) enqueue(n *graph.Node) {
	if c.queued == nil {
		c.queued = make(map[uint32]bool)
	}
	if c.queued[n.ID] {
		return
	}
	c.queued[n.ID] = true
	c.queue = append(c.queue, n)
}

func (c *cycle) drain() {
	c.stillPending = make(map[uint32]*graph.Node)

	for len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]

		if n.State() == graph.Error {
			continue
		}

		ready := readyCount(n, graph.Input)
		n.SetReady(graph.Input, ready)

		if !c.processedIn[n.ID] && n.Triggered(graph.Input) {
			c.processInput(n)
		} else if !c.processedIn[n.ID] {
			c.stillPending[n.ID] = n
		}
	}
}

// processOutput invokes n's ProcessOutput implementation at most once
// per cycle, then enqueues its downstream peers for re-evaluation.
func (c *cycle) processOutput(n *graph.Node) {
	if c.processedOut[n.ID] {
		return
	}
	c.processedOut[n.ID] = true

	err := n.Impl.ProcessOutput(n)
	if err != nil {
		n.RecordCycleError()
		if c.s.log != nil {
			c.s.log.Warn().Uint32("node", n.ID).Err(err).Msg("process_output failed")
		}
		return
	}
	c.report.ProcessedOutput = append(c.report.ProcessedOutput, n.ID)

	for _, p := range n.Ports(graph.Output) {
		if p.Peer != nil {
			c.enqueue(p.Peer.Node)
		}
	}
}

// processInput invokes n's ProcessInput implementation at most once
// per cycle, then — since a node that just consumed input typically
// has new output to offer — asks it to produce output too, continuing
// the propagation downstream.
func (c *cycle) processInput(n *graph.Node) {
	c.processedIn[n.ID] = true

	err := n.Impl.ProcessInput(n)
	if err != nil {
		n.RecordCycleError()
		if c.s.log != nil {
			c.s.log.Warn().Uint32("node", n.ID).Err(err).Msg("process_input failed")
		}
		return
	}
	c.report.ProcessedInput = append(c.report.ProcessedInput, n.ID)

	if len(n.Ports(graph.Output)) > 0 {
		c.processOutput(n)
	}
}

// needInput walks n's Input ports and asks each upstream peer to
// produce output, then enqueues n itself so drain() re-evaluates its
// ready count once those peers have published — the pull half of
// graph-scheduler6.h's spa_graph_impl_need_input/have_output mutual
// recursion. A peer that is itself waiting on further upstream input
// (a passthrough node with both directions) is pulled recursively
// first, since its own process_output has nothing to publish until
// its inputs are satisfied.
func (c *cycle) needInput(n *graph.Node) {
	if c.neededIn == nil {
		c.neededIn = make(map[uint32]bool)
	}
	if c.neededIn[n.ID] {
		return
	}
	c.neededIn[n.ID] = true

	for _, p := range n.Ports(graph.Input) {
		if p.Peer == nil {
			continue
		}
		peer := p.Peer.Node
		if peer.State() == graph.Error {
			continue
		}
		if len(peer.Ports(graph.Input)) > 0 {
			c.needInput(peer)
		}
		c.processOutput(peer)
	}

	c.enqueue(n)
}

// readyCount scans n's ports in direction d and counts those whose
// peer's I/O area currently reports the complementary status
// (HaveBuffer for an Input port waiting on an upstream Output,
// NeedBuffer for an Output port waiting on a downstream Input) —
// spec.md §4.8's ready/required bookkeeping.
func readyCount(n *graph.Node, d graph.Direction) int {
	want := graph.IOStatusHaveBuffer
	if d == graph.Output {
		want = graph.IOStatusNeedBuffer
	}
	count := 0
	for _, p := range n.Ports(d) {
		if p.Peer != nil && p.IO.Status() == want {
			count++
		}
	}
	return count
}
