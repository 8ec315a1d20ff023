package evloop

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	nop := zerolog.Nop()
	l, err := New(&nop)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestEventSignalDispatch(t *testing.T) {
	l := newTestLoop(t)

	fired := make(chan uint64, 1)
	src, err := l.AddEvent(func(count uint64) { fired <- count })
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	if err := l.Signal(src); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	n, err := l.Iterate(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if n != 1 {
		t.Fatalf("dispatched = %d, want 1", n)
	}
	select {
	case <-fired:
	default:
		t.Fatal("EventFunc was not invoked")
	}
}

func TestIOSourcePipeReadable(t *testing.T) {
	l := newTestLoop(t)

	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	ready := make(chan IOMask, 1)
	src, err := l.AddIO(fds[0], In, func(fd int, mask IOMask) { ready <- mask })
	if err != nil {
		t.Fatalf("AddIO: %v", err)
	}
	defer l.DestroySource(src)

	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := l.Iterate(100 * time.Millisecond); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	select {
	case mask := <-ready:
		if mask&In == 0 {
			t.Fatalf("mask = %v, want In set", mask)
		}
	default:
		t.Fatal("IOFunc was not invoked")
	}
}

func TestTimerFiresAndRearms(t *testing.T) {
	l := newTestLoop(t)

	fires := make(chan uint64, 4)
	src, err := l.AddTimer(10*time.Millisecond, func(n uint64) { fires <- n })
	if err != nil {
		t.Fatalf("AddTimer: %v", err)
	}
	defer l.DestroySource(src)

	deadline := time.Now().Add(200 * time.Millisecond)
	count := 0
	for count < 2 && time.Now().Before(deadline) {
		l.Iterate(20 * time.Millisecond)
		select {
		case <-fires:
			count++
		default:
		}
	}
	if count < 2 {
		t.Fatalf("timer fired %d times, want >= 2 (rearm should repeat)", count)
	}
}

func TestDestroySourceIsIdempotent(t *testing.T) {
	l := newTestLoop(t)
	src, err := l.AddEvent(func(uint64) {})
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	l.DestroySource(src)
	l.DestroySource(src) // must not panic
}
