// Package engine wires together the graph, scheduler, registry and the
// two long-lived loops spec.md §5 requires: a MainLoop for control-plane
// work (registry binds, property updates, stream connects) and a
// DataLoop that pulls the scheduler at a fixed period. Lifecycle
// (Start/Stop/Wait) follows pipe.Pipe's started/stopped atomic-bool
// guards and its WaitGroup released at the end of Start, generalised
// from BGP message processing to periodic graph cycles; shutdown waits
// on the errgroup that runs both loops.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rtgraph/rtgraph/evloop"
	"github.com/rtgraph/rtgraph/graph"
	"github.com/rtgraph/rtgraph/registry"
	"github.com/rtgraph/rtgraph/scheduler"
	"github.com/rtgraph/rtgraph/typemap"
)

// Options configures an Engine; modify before calling Start.
type Options struct {
	// DriverPeriod is the DataLoop's target cycle interval, e.g. the
	// 10ms/48kHz-ish period a real audio graph would drive at.
	DriverPeriod time.Duration

	// DefaultClientPerms is granted to a client that has no explicit
	// per-global permission grant (registry.Perm).
	DefaultClientPerms registry.Perm
}

// DefaultOptions matches a modest control-rate driver period.
var DefaultOptions = Options{
	DriverPeriod:       10 * time.Millisecond,
	DefaultClientPerms: registry.PermRWX,
}

// Engine owns one Graph, its Scheduler, a Registry of bindable globals,
// and the MainLoop/DataLoop pair that drive them, spec.md §5-§6.
type Engine struct {
	*zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	Options Options

	Graph     *graph.Graph
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Types     *typemap.Mapper

	MainLoop *evloop.Loop
	DataLoop *evloop.Loop

	started atomic.Bool
	stopped atomic.Bool
	wgstart sync.WaitGroup

	group *errgroup.Group

	limiter *rate.Limiter

	xrunHandlers []func(report *scheduler.CycleReport)
	xrunMu       sync.Mutex
}

// New constructs an Engine with the given options. A zero DriverPeriod
// falls back to DefaultOptions.DriverPeriod; DefaultClientPerms is used
// as given, so a zero value grants new clients no permissions.
func New(ctx context.Context, opts Options, log *zerolog.Logger) (*Engine, error) {
	if opts.DriverPeriod <= 0 {
		opts.DriverPeriod = DefaultOptions.DriverPeriod
	}

	e := &Engine{Logger: log, Options: opts}
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.Graph = graph.New(log)
	e.Scheduler = scheduler.New(e.Graph, log)
	e.Registry = registry.New(log)
	e.Types = typemap.New()

	mainLoop, err := evloop.New(log)
	if err != nil {
		return nil, err
	}
	e.MainLoop = mainLoop

	dataLoop, err := evloop.New(log)
	if err != nil {
		mainLoop.Close()
		return nil, err
	}
	e.DataLoop = dataLoop

	// a generous ceiling so a starved DataLoop can catch up after a
	// scheduling hiccup without the limiter itself becoming the xrun
	// source; this mirrors token-bucket pacing, not a hard clock.
	e.limiter = rate.NewLimiter(rate.Every(opts.DriverPeriod), 4)

	e.wgstart.Add(1)
	return e, nil
}

// OnXrun registers fn to be called from the DataLoop goroutine whenever
// a cycle reports an xrun (spec.md §4.8).
func (e *Engine) OnXrun(fn func(report *scheduler.CycleReport)) {
	e.xrunMu.Lock()
	defer e.xrunMu.Unlock()
	e.xrunHandlers = append(e.xrunHandlers, fn)
}

func (e *Engine) notifyXrun(report *scheduler.CycleReport) {
	e.xrunMu.Lock()
	handlers := append([]func(*scheduler.CycleReport)(nil), e.xrunHandlers...)
	e.xrunMu.Unlock()
	for _, h := range handlers {
		h(report)
	}
}

// Start launches the MainLoop and DataLoop goroutines. It returns
// immediately; call Wait to block until Stop completes shutdown.
func (e *Engine) Start() {
	if e.started.Swap(true) || e.stopped.Load() {
		return
	}

	group, gctx := errgroup.WithContext(e.ctx)
	e.group = group

	group.Go(func() error { return e.runMainLoop(gctx) })
	group.Go(func() error { return e.runDataLoop(gctx) })

	e.wgstart.Done()
}

// runMainLoop iterates the control-plane loop until cancelled.
func (e *Engine) runMainLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := e.MainLoop.Iterate(50 * time.Millisecond); err != nil {
			return err
		}
	}
}

// runDataLoop pulls the scheduler once per DriverPeriod, rate-limited
// by e.limiter, and forwards any xrun to registered handlers. Each
// cycle also services the DataLoop's own event/timer sources so
// RT-flagged work posted via evloop lands on the right thread.
func (e *Engine) runDataLoop(ctx context.Context) error {
	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil // context cancelled
		}

		if _, err := e.DataLoop.Iterate(0); err != nil {
			return err
		}

		report, err := e.Scheduler.RunCycle()
		if err != nil {
			if e.Logger != nil {
				e.Logger.Debug().Err(err).Msg("cycle skipped")
			}
			continue
		}
		if report.Xrun {
			e.notifyXrun(report)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// Stop cancels both loops and blocks until they exit.
func (e *Engine) Stop() {
	if e.stopped.Swap(true) || !e.started.Load() {
		return
	}
	e.cancel()
	if e.group != nil {
		e.group.Wait()
	}
	e.MainLoop.Close()
	e.DataLoop.Close()
}

// Wait blocks until the engine has started and then stopped.
func (e *Engine) Wait() {
	e.wgstart.Wait()
	if e.group != nil {
		e.group.Wait()
	}
}

// NewClient registers a client with the engine's registry using the
// engine's configured default permission mask.
func (e *Engine) NewClient() (uint32, *registry.Client) {
	return e.Registry.AddClient(e.Options.DefaultClientPerms)
}

// Started reports whether Start has been called.
func (e *Engine) Started() bool { return e.started.Load() }

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }
