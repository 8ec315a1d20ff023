// Package evloop implements the poll-driven event loop from spec.md
// §4.5: epoll-backed IO sources, a single-armed timer source ordered by
// a binary heap, user-signalled events, and an Iterate(timeout) call
// that dispatches whatever is ready and returns, mirroring
// original_source/pinos/client/loop.h's add_io/add_timer/add_event/
// destroy_source/iterate surface.
package evloop

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// IOMask is a bitmask of epoll-style readiness conditions.
type IOMask uint32

const (
	In  IOMask = unix.EPOLLIN
	Out IOMask = unix.EPOLLOUT
	Err IOMask = unix.EPOLLERR
	Hup IOMask = unix.EPOLLHUP
)

// IOFunc is called when an IO source becomes ready with the mask of
// conditions that fired.
type IOFunc func(fd int, mask IOMask)

// TimerFunc is called when a timer source's deadline elapses.
type TimerFunc func(expirations uint64)

// EventFunc is called when a user-signalled event source is consumed.
type EventFunc func(count uint64)

// sourceKind distinguishes the three registrable source types.
type sourceKind int

const (
	kindIO sourceKind = iota
	kindTimer
	kindEvent
)

// Source is an opaque handle returned by Add* and consumed by Destroy.
type Source struct {
	kind sourceKind
	id   uint64

	// IO
	fd     int
	mask   IOMask
	ioFunc IOFunc

	// event (eventfd-backed)
	evFd    int
	evFunc  EventFunc

	// timer, also heap.Interface element bookkeeping
	deadline time.Time
	interval time.Duration
	timerFn  TimerFunc
	heapIdx  int
}

// Loop is one epoll-backed event loop. Not safe for concurrent Iterate
// calls from multiple goroutines; Signal and Add*/Destroy are safe to
// call from any goroutine.
type Loop struct {
	log *zerolog.Logger

	epfd int

	mu       sync.Mutex
	byID     map[uint64]*Source
	byFd     map[int]*Source
	timers   timerHeap
	nextID   uint64
	closed   bool
}

// New creates an epoll instance backing the loop.
func New(log *zerolog.Logger) (*Loop, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("evloop: epoll_create1: %w", err)
	}
	l := &Loop{
		log:  log,
		epfd: fd,
		byID: make(map[uint64]*Source),
		byFd: make(map[int]*Source),
	}
	heap.Init(&l.timers)
	return l, nil
}

// AddIO registers fd for readiness notifications matching mask.
func (l *Loop) AddIO(fd int, mask IOMask, fn IOFunc) (*Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("evloop: closed")
	}

	ev := unix.EpollEvent{Events: uint32(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, fmt.Errorf("evloop: epoll_ctl add: %w", err)
	}

	l.nextID++
	src := &Source{kind: kindIO, id: l.nextID, fd: fd, mask: mask, ioFunc: fn}
	l.byID[src.id] = src
	l.byFd[fd] = src
	return src, nil
}

// AddTimer arms a timer source that fires once after d, then fires
// again every d until DestroySource removes it. With d == 0 it fires
// once on the next Iterate and is not repeated. No dedicated fd is
// used per timer.
func (l *Loop) AddTimer(d time.Duration, fn TimerFunc) (*Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("evloop: closed")
	}

	l.nextID++
	src := &Source{
		kind:     kindTimer,
		id:       l.nextID,
		deadline: timeNow().Add(d),
		interval: d,
		timerFn:  fn,
	}
	l.byID[src.id] = src
	heap.Push(&l.timers, src)
	return src, nil
}

// AddEvent registers a user-signalled source, fired via Signal.
func (l *Loop) AddEvent(fn EventFunc) (*Source, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("evloop: eventfd: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		unix.Close(fd)
		return nil, fmt.Errorf("evloop: closed")
	}

	ev := unix.EpollEvent{Events: uint32(In), Fd: int32(fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("evloop: epoll_ctl add event: %w", err)
	}

	l.nextID++
	src := &Source{kind: kindEvent, id: l.nextID, evFd: fd, evFunc: fn}
	l.byID[src.id] = src
	l.byFd[fd] = src
	return src, nil
}

// Signal wakes the loop and causes src's EventFunc to be invoked on the
// next Iterate, coalescing concurrent signals into the eventfd counter.
func (l *Loop) Signal(src *Source) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(src.evFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("evloop: signal: %w", err)
	}
	return nil
}

// DestroySource removes src from the loop. Safe to call more than once.
func (l *Loop) DestroySource(src *Source) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byID[src.id]; !ok {
		return
	}
	delete(l.byID, src.id)

	switch src.kind {
	case kindIO:
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, src.fd, nil)
		delete(l.byFd, src.fd)
	case kindEvent:
		unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, src.evFd, nil)
		delete(l.byFd, src.evFd)
		unix.Close(src.evFd)
	case kindTimer:
		if src.heapIdx >= 0 {
			heap.Remove(&l.timers, src.heapIdx)
		}
	}
}

// Iterate waits up to timeout (negative blocks indefinitely, zero
// polls) for ready sources, dispatches all that are ready, and
// returns the number dispatched.
func (l *Loop) Iterate(timeout time.Duration) (int, error) {
	nextTimer, haveTimer := l.nextTimerDelay()
	waitMs := epollTimeoutMs(timeout, nextTimer, haveTimer)

	var events [32]unix.EpollEvent
	n, err := unix.EpollWait(l.epfd, events[:], waitMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("evloop: epoll_wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		l.mu.Lock()
		src, ok := l.byFd[fd]
		l.mu.Unlock()
		if !ok {
			continue
		}
		switch src.kind {
		case kindIO:
			src.ioFunc(fd, IOMask(events[i].Events))
		case kindEvent:
			var buf [8]byte
			unix.Read(src.evFd, buf[:])
			src.evFunc(1)
		}
		dispatched++
	}

	dispatched += l.fireExpiredTimers()
	return dispatched, nil
}

// Close releases the loop's epoll fd and any live event sources' fds.
func (l *Loop) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, src := range l.byID {
		if src.kind == kindEvent {
			unix.Close(src.evFd)
		}
	}
	return unix.Close(l.epfd)
}

func (l *Loop) nextTimerDelay() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	d := l.timers[0].deadline.Sub(timeNow())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (l *Loop) fireExpiredTimers() int {
	fired := 0
	for {
		l.mu.Lock()
		if len(l.timers) == 0 || l.timers[0].deadline.After(timeNow()) {
			l.mu.Unlock()
			break
		}
		src := heap.Pop(&l.timers).(*Source)
		if src.interval > 0 {
			src.deadline = timeNow().Add(src.interval)
			heap.Push(&l.timers, src)
		}
		l.mu.Unlock()

		src.timerFn(1)
		fired++
	}
	return fired
}

func epollTimeoutMs(requested time.Duration, nextTimer time.Duration, haveTimer bool) int {
	// requested < 0 means block indefinitely unless a timer fires sooner
	ms := -1
	if requested >= 0 {
		ms = int(requested / time.Millisecond)
	}
	if haveTimer {
		tms := int(nextTimer / time.Millisecond)
		if ms < 0 || tms < ms {
			ms = tms
		}
	}
	return ms
}

// timeNow is the loop's only source of wall-clock time, isolated here
// so tests can't accidentally rely on it to assert scheduling order.
func timeNow() time.Time {
	return time.Now()
}
