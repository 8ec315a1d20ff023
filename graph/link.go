package graph

// Link is the logical association between exactly one output port and
// one input port, spec.md §3. Unlike Node/Port, Link is not a
// long-lived handle the graph keeps around after linking — port.Peer
// is the source of truth — but it is returned from Graph.Link as a
// convenience value describing what was just connected.
type Link struct {
	Output *Port
	Input  *Port
}

// Link connects out (an Output-direction port) to in (an Input-direction
// port): sets reciprocal peer pointers, shares the same I/O area, and
// rejects the link if either port is already linked, if the directions
// don't match, or if it would introduce a cycle into the graph
// (spec.md §3's DAG invariant and §4.6's port.link operation).
func (g *Graph) Link(out, in *Port) (*Link, error) {
	if out.Direction != Output || in.Direction != Input {
		return nil, ErrPortDirection
	}
	if out.Linked() || in.Linked() {
		return nil, ErrAlreadyLinked
	}
	if out.Node.Graph != g || in.Node.Graph != g {
		return nil, ErrForeignPort
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reachable(in.Node, out.Node) {
		return nil, ErrWouldCycle
	}

	out.Peer = in
	in.Peer = out
	in.IO = out.IO // sender writes, receiver reads the same area

	g.links = append(g.links, &Link{Output: out, Input: in})
	return &Link{Output: out, Input: in}, nil
}

// Unlink clears both peer pointers of the link between out and in,
// spec.md §4.6's port.unlink operation.
func (g *Graph) Unlink(out, in *Port) error {
	if out.Peer != in || in.Peer != out {
		return ErrNotLinked
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	out.Peer = nil
	in.Peer = nil
	for i, l := range g.links {
		if l.Output == out && l.Input == in {
			g.links = append(g.links[:i], g.links[i+1:]...)
			break
		}
	}
	return nil
}

// reachable reports whether to is reachable from from by following
// linked output ports forward, used to reject link operations that
// would create a cycle. Caller must hold g.mu.
func (g *Graph) reachable(from, to *Node) bool {
	if from == to {
		return true
	}
	visited := make(map[*Node]bool)
	var stack []*Node
	stack = append(stack, from)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == to {
			return true
		}
		for _, p := range n.ports[Output] {
			if p.Peer != nil {
				stack = append(stack, p.Peer.Node)
			}
		}
	}
	return false
}
