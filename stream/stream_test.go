package stream

import (
	"testing"
	"time"

	"github.com/rtgraph/rtgraph/bufferpool"
	"github.com/rtgraph/rtgraph/graph"
	"github.com/rtgraph/rtgraph/props"
)

type nopImpl struct{}

func (nopImpl) ProcessInput(n *graph.Node) error  { return nil }
func (nopImpl) ProcessOutput(n *graph.Node) error { return nil }

func TestConnectReachesRunningAndEmitsStateEvents(t *testing.T) {
	g := graph.New(nil)

	sinkNode := graph.NewNode(0, "sink", nopImpl{}, nil, nil)
	sinkNode.ID = g.NodeAdd(sinkNode)
	sinkPort := g.PortAdd(sinkNode, 0, graph.Input, 0)

	var states []graph.State
	s := NewSimple("src", graph.Output, nopImpl{}, nil, nil)
	s.AddCallback(func(ev *Event) {
		if ev.Type == EventStateChanged {
			states = append(states, ev.NewState)
		}
	})

	_, err := s.Connect(g, sinkPort, 0, bufferpool.Params{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	want := []graph.State{graph.Suspended, graph.Idle, graph.Running}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
	if s.Node.State() != graph.Running {
		t.Fatalf("final state = %v, want Running", s.Node.State())
	}
}

func TestConnectAllocBuffersFiresAddBufferPerBuffer(t *testing.T) {
	g := graph.New(nil)
	sinkNode := graph.NewNode(0, "sink", nopImpl{}, nil, nil)
	sinkNode.ID = g.NodeAdd(sinkNode)
	sinkPort := g.PortAdd(sinkNode, 0, graph.Input, 0)

	var added int
	s := NewSimple("src", graph.Output, nopImpl{}, nil, nil)
	s.AddCallback(func(ev *Event) { added++ }, EventAddBuffer)

	_, err := s.Connect(g, sinkPort, AllocBuffers, bufferpool.Params{Buffers: 3, Size: 64, DataType: bufferpool.MemPtr})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if added != 3 {
		t.Fatalf("EventAddBuffer fired %d times, want 3", added)
	}
}

func TestDequeueQueueBuffer(t *testing.T) {
	g := graph.New(nil)
	sinkNode := graph.NewNode(0, "sink", nopImpl{}, nil, nil)
	sinkNode.ID = g.NodeAdd(sinkNode)
	sinkPort := g.PortAdd(sinkNode, 0, graph.Input, 0)

	s := NewSimple("src", graph.Output, nopImpl{}, nil, nil)
	_, err := s.Connect(g, sinkPort, AllocBuffers, bufferpool.Params{Buffers: 2, Size: 32, DataType: bufferpool.MemPtr})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	b, ok := s.DequeueBuffer()
	if !ok {
		t.Fatal("DequeueBuffer should succeed right after connect")
	}
	if err := s.QueueBuffer(b); err != nil {
		t.Fatalf("QueueBuffer: %v", err)
	}
}

// A stream that goes Idle and sits there past its configured suspend
// timeout is automatically suspended, after which dequeue_buffer fails:
// the pool is released on suspend and the stream does not rebuild it.
func TestIdleSuspensionAfterTimeout(t *testing.T) {
	g := graph.New(nil)
	sinkNode := graph.NewNode(0, "sink", nopImpl{}, nil, nil)
	sinkNode.ID = g.NodeAdd(sinkNode)
	sinkPort := g.PortAdd(sinkNode, 0, graph.Input, 0)

	shortTimeout := props.New("node.suspend.timeout", "20ms")
	s := NewSimple("src", graph.Output, nopImpl{}, shortTimeout, nil)

	_, err := s.Connect(g, sinkPort, AllocBuffers|InactiveStart, bufferpool.Params{Buffers: 1, Size: 16, DataType: bufferpool.MemPtr})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if s.Node.State() != graph.Idle {
		t.Fatalf("state after InactiveStart connect = %v, want Idle", s.Node.State())
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for s.Node.State() == graph.Idle && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Node.State() != graph.Suspended {
		t.Fatalf("state after idle timeout = %v, want Suspended", s.Node.State())
	}

	if _, ok := s.DequeueBuffer(); ok {
		t.Fatal("DequeueBuffer should fail once the pool has been released on suspend")
	}
}
