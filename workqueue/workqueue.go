// Package workqueue implements the FIFO of deferred object operations
// described in spec.md §4.4, modeled on pipewire/src/pipewire/work-queue.c
// but dispatched through a buffered Go channel "wakeup" the way
// pipe.Pipe.evch drives pipe.eventHandler, instead of an fd-based
// poll-loop event source.
package workqueue

import (
	"sync"

	"github.com/rs/zerolog"
)

// SeqInvalid marks an item that is not waiting on any async sequence,
// i.e. it is immediately eligible to run (subject to Busy ordering).
const SeqInvalid int64 = -1

// Result mirrors spa's negative-errno / async-sequence result convention:
// a non-negative Result is a plain outcome code, Busy means "retry once
// at the head of the queue", and any caller-supplied sentinel works too.
type Result int

// Busy means the item must wait until it is the oldest item in the
// queue before it may fire.
const Busy Result = -1

// Func is called once an item fires, exactly once, with the object it
// was queued against, user data, the completed result and the item id.
type Func func(obj any, data any, res Result, id uint32)

type item struct {
	id       uint32
	obj      any
	seq      int64
	res      Result
	func_    Func
	data     any
	canceled bool
}

// Queue serialises pending operations against their completion sequence
// numbers, in the order they were added. Safe for concurrent use.
type Queue struct {
	log *zerolog.Logger

	mu      sync.Mutex
	pending []*item
	free    []*item
	counter uint32

	wakeup chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New returns a running Queue. Call Close to stop its dispatch goroutine.
func New(log *zerolog.Logger) *Queue {
	q := &Queue{
		log:    log,
		wakeup: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.dispatchLoop()
	return q
}

// Add enqueues a new work item for obj with initial result res.
//
//   - res == Busy: the item waits until it is the head of the queue.
//   - seq != SeqInvalid: the item waits until Complete(obj, seq, ...).
//     A seq of 0 is treated as SeqInvalid.
//   - otherwise: the item is ready immediately.
//
// Returns the item's id, usable with Cancel.
func (q *Queue) Add(obj any, seq int64, res Result, fn Func, data any) uint32 {
	if seq == 0 {
		seq = SeqInvalid
	}

	q.mu.Lock()
	q.counter++
	it := q.allocLocked()
	it.id = q.counter
	it.obj = obj
	it.seq = seq
	it.res = res
	it.func_ = fn
	it.data = data
	it.canceled = false
	q.pending = append(q.pending, it)
	ready := seq == SeqInvalid && res != Busy
	q.mu.Unlock()

	if ready {
		q.signal()
	}
	return it.id
}

// Cancel turns item id (optionally scoped to obj) into a no-op: its
// callback will not be invoked, but the slot is still dispatched in
// its original position so FIFO progress for other items is preserved.
// A canceled item is also freed from whatever sequence it was waiting
// on (pw_work_queue_cancel's item->seq = SPA_ID_INVALID), so it cannot
// sit blocking dispatchReady forever if the matching Complete never
// arrives.
func (q *Queue) Cancel(obj any, id uint32) {
	q.mu.Lock()
	found := false
	for _, it := range q.pending {
		if (id == 0 || it.id == id) && (obj == nil || it.obj == obj) {
			it.func_ = nil
			it.canceled = true
			it.seq = SeqInvalid
			found = true
		}
	}
	q.mu.Unlock()

	if found {
		q.signal()
	}
}

// Complete marks every item waiting on (obj, seq) as ready with res.
// Returns true iff at least one matching item was found.
func (q *Queue) Complete(obj any, seq int64, res Result) bool {
	q.mu.Lock()
	found := false
	for _, it := range q.pending {
		if it.obj == obj && it.seq == seq {
			it.seq = SeqInvalid
			it.res = res
			found = true
		}
	}
	q.mu.Unlock()

	if found {
		q.signal()
	}
	return found
}

// Len returns the number of items still pending (including canceled
// ones not yet dispatched).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the dispatch goroutine. Items still pending are dropped.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

func (q *Queue) signal() {
	select {
	case q.wakeup <- struct{}{}:
	default: // a wakeup is already pending, dispatch will catch up
	}
}

func (q *Queue) dispatchLoop() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wakeup:
			q.dispatchReady()
		}
	}
}

// dispatchReady walks the pending list oldest-to-newest, firing every
// item that is neither blocked on a sequence nor a non-head Busy item.
func (q *Queue) dispatchReady() {
	for {
		q.mu.Lock()
		var fire *item
		idx := -1
		for i, it := range q.pending {
			if it.seq != SeqInvalid {
				continue // still waiting for Complete
			}
			if it.res == Busy && i != 0 {
				continue // not at the head yet
			}
			fire, idx = it, i
			break
		}
		if fire == nil {
			q.mu.Unlock()
			return
		}
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
		q.mu.Unlock()

		if fn := fire.func_; fn != nil {
			fn(fire.obj, fire.data, fire.res, fire.id)
		}

		q.mu.Lock()
		q.free = append(q.free, fire)
		q.mu.Unlock()
	}
}

// allocLocked pops a recycled item node, or allocates a fresh one.
// Caller must hold q.mu.
func (q *Queue) allocLocked() *item {
	if n := len(q.free); n > 0 {
		it := q.free[n-1]
		q.free = q.free[:n-1]
		return it
	}
	return &item{}
}
