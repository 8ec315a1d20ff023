package graph

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/rtgraph/rtgraph/internal/idmap"
)

// Graph is an ordered collection of Nodes plus scheduling metadata,
// spec.md §3: a ready list, a pending list, and one designated driver
// node. Cycle/pending-list bookkeeping that changes every scheduler
// cycle lives in package scheduler; Graph only owns the structural
// invariants (membership, links, driver selection).
type Graph struct {
	log *zerolog.Logger

	mu     sync.Mutex
	nodes  *idmap.Map[*Node]
	links  []*Link
	driver *Node
}

// New returns an empty graph.
func New(log *zerolog.Logger) *Graph {
	return &Graph{
		log:   log,
		nodes: idmap.New[*Node](),
	}
}

// NodeAdd registers node in the graph and gives it a graph-scoped id.
// It does not change the node's state: a node built by graph.NewNode
// stays in Creating until the caller invokes MarkSuspended once all of
// its ports are registered. NodeAdd only does the bookkeeping of graph
// membership.
func (g *Graph) NodeAdd(n *Node) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nodes.Insert(n)
	n.Graph = g
	if g.log != nil {
		g.log.Debug().Uint32("node", id).Str("name", n.Name).Msg("node added to graph")
	}
	return id
}

// NodeRemove detaches node from the graph, unlinking any of its ports
// still connected and clearing it from the driver slot if applicable
// (spec.md §4.6's node_remove operation).
func (g *Graph) NodeRemove(id uint32) error {
	g.mu.Lock()
	n, ok := g.nodes.Lookup(id)
	g.mu.Unlock()
	if !ok {
		return ErrNodeNotFound
	}

	for _, d := range []Direction{Input, Output} {
		for _, p := range n.Ports(d) {
			if peer := p.Peer; peer != nil {
				if d == Output {
					g.Unlink(p, peer)
				} else {
					g.Unlink(peer, p)
				}
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes.Remove(id)
	if g.driver == n {
		g.driver = nil
	}
	n.Graph = nil
	return nil
}

// SetDriver designates node as the graph's single driver, spec.md §4.8.
func (g *Graph) SetDriver(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.driver = n
}

// Driver returns the graph's current driver node, or nil if none is set.
func (g *Graph) Driver() *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.driver
}

// Node looks up a node by its graph-scoped id.
func (g *Graph) Node(id uint32) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes.Lookup(id)
}

// Nodes returns every node currently registered in the graph, in
// unspecified order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*Node
	g.nodes.Each(func(_ uint32, n *Node) { out = append(out, n) })
	return out
}

// PortAdd appends a new port to node in the given direction, allocating
// a fresh I/O area, and bumps the node's required count unless flags
// marks it optional (spec.md §4.6's port_add operation).
func (g *Graph) PortAdd(n *Node, portID uint32, d Direction, flags PortFlags) *Port {
	p := &Port{
		ID:        portID,
		Direction: d,
		Flags:     flags,
		Node:      n,
		IO:        NewIOArea(),
	}
	n.addPort(p)
	return p
}

// PortRemove detaches port from its node, unlinking it first if needed.
func (g *Graph) PortRemove(p *Port) {
	if p.Peer != nil {
		if p.Direction == Output {
			g.Unlink(p, p.Peer)
		} else {
			g.Unlink(p.Peer, p)
		}
	}
	p.Node.removePort(p)
}
