package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/rtgraph/rtgraph/graph"
	"github.com/rtgraph/rtgraph/registry"
	"github.com/rtgraph/rtgraph/scheduler"
)

type countingImpl struct{ processed int }

func (c *countingImpl) ProcessInput(n *graph.Node) error { return nil }
func (c *countingImpl) ProcessOutput(n *graph.Node) error {
	c.processed++
	for _, p := range n.Ports(graph.Output) {
		p.IO.SetStatus(graph.IOStatusHaveBuffer)
	}
	return nil
}

func TestEngineStartRunsCyclesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, err := New(context.Background(), Options{DriverPeriod: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	impl := &countingImpl{}
	node := graph.NewNode(0, "driver", impl, nil, nil)
	node.ID = e.Graph.NodeAdd(node)
	e.Graph.SetDriver(node)

	var gotXrun []*scheduler.CycleReport
	e.OnXrun(func(r *scheduler.CycleReport) { gotXrun = append(gotXrun, r) })

	e.Start()
	time.Sleep(60 * time.Millisecond)
	e.Stop()
	e.Wait()

	if impl.processed == 0 {
		t.Fatal("expected at least one cycle to have run the driver's ProcessOutput")
	}
}

func TestNewClientUsesDefaultPermissions(t *testing.T) {
	e, err := New(context.Background(), Options{DefaultClientPerms: registry.PermR}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, client := e.NewClient()
	if _, ok := e.Registry.Client(id); !ok {
		t.Fatal("registered client should be findable by id")
	}
	if perms := client.PermsFor(0); perms != registry.PermR {
		t.Fatalf("PermsFor default = %v, want %v", perms, registry.PermR)
	}
}

func TestEngineStartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, err := New(context.Background(), Options{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.Start()
	e.Start() // no-op
	e.Stop()
	e.Stop() // no-op
	e.Wait()
}
