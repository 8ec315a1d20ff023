// Package bufferpool implements the fixed-size buffer pool from
// spec.md §4.3, grounded on spa/include/spa/buffer.h's SpaBuffer/SpaData
// shape and spa/lib/memory.c's memfd-backed allocation strategy, adapted
// to Go: planes are backed by process-local memory, a shared memfd
// (via golang.org/x/sys/unix), or an externally imported DMA-BUF-style
// fd accepted as-is.
package bufferpool

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DataType is the backing kind of a Plane, spec.md §6.
type DataType int

const (
	MemPtr DataType = iota
	MemFd
	DmaBuf
	MemId
)

// PlaneFlags describe access rights available on a memfd-backed Plane.
type PlaneFlags int

const (
	Readable PlaneFlags = 1 << iota
	Writable
	Mappable
)

// Chunk describes the valid payload region within a Plane's backing
// memory: [Offset, Offset+Size), with an optional row Stride.
type Chunk struct {
	Offset uint32
	Size   uint32
	Stride uint32
}

// Plane is one contiguous data region within a Buffer (e.g. one of Y/U/V
// video planes, or the single plane of an audio buffer).
type Plane struct {
	Type      DataType
	Flags     PlaneFlags
	Fd        int // >= 0 iff Type is MemFd or DmaBuf
	MapOffset uint32
	MaxSize   uint32
	Chunk     Chunk
	Data      []byte // direct-access view, valid for MemPtr and mapped MemFd planes
}

// ownership is the pool's bookkeeping state for one buffer id.
type ownership int

const (
	free ownership = iota
	inFlight
	returned
)

// Buffer is one element of a Pool, carrying zero or more metadata
// records and one or more data Planes.
type Buffer struct {
	Id     int
	Metas  [][]byte // opaque metadata records (header, crop, ...)
	Datas  []Plane

	owner ownership
}

// Params mirrors the recognised buffer-pool parameter object from
// spec.md §4.3: {Buffers: {buffers, blocks, size, stride, dataType}}.
type Params struct {
	Buffers  int
	Blocks   int
	Size     int
	Stride   int
	DataType DataType // preferred backing; MemFd falls back to MemPtr if unavailable

	// MetaSizes requests len(MetaSizes) metadata records per buffer,
	// each MetaSizes[i] bytes (spec.md's MetaEnable parameter).
	MetaSizes []int
}

// Pool is a fixed set of buffers shared between a producer and a
// consumer for one link, identified by small integer ids 0..n-1.
type Pool struct {
	mu      sync.Mutex
	once    sync.Once
	built   bool
	params  Params
	buffers []*Buffer

	// freeQueue and returnQueue hold buffer ids; queue moves
	// in-flight -> returnQueue, the scheduler/peer moves
	// returnQueue -> freeQueue as spec.md §4.3 describes.
	freeQueue   []int
	returnQueue []int

	shm *sharedRegion // non-nil iff params.DataType == MemFd and allocation succeeded
}

// New returns an empty Pool; Build performs its allocation. Allocation
// happens exactly once: only the first Build call does any work, and
// later calls return nil whatever params they pass.
func New() *Pool {
	return &Pool{}
}

// Build performs the (exactly-once) allocation described by params.
func (p *Pool) Build(params Params) error {
	var buildErr error
	p.once.Do(func() {
		buildErr = p.build(params)
	})
	return buildErr
}

func (p *Pool) build(params Params) error {
	if params.Buffers <= 0 {
		return fmt.Errorf("bufferpool: Buffers must be > 0")
	}
	if params.Blocks <= 0 {
		params.Blocks = 1
	}
	if params.Size <= 0 {
		return fmt.Errorf("bufferpool: Size must be > 0")
	}
	p.params = params

	useMemFd := params.DataType == MemFd
	var shm *sharedRegion
	if useMemFd {
		var err error
		shm, err = newSharedRegion("bufferpool", uint64(params.Buffers*params.Size))
		if err != nil {
			// fall back to heap-backed planes, per spec.md §4.3's allocation
			// policy note that MemFd is a consumer *preference*, not a
			// hard requirement on the implementation
			useMemFd = false
		}
	}
	p.shm = shm

	p.buffers = make([]*Buffer, params.Buffers)
	for i := 0; i < params.Buffers; i++ {
		b := &Buffer{Id: i, owner: free}

		for m := 0; m < len(params.MetaSizes); m++ {
			b.Metas = append(b.Metas, make([]byte, params.MetaSizes[m]))
		}

		for k := 0; k < params.Blocks; k++ {
			if useMemFd {
				fd, err := shm.dup()
				if err != nil {
					return fmt.Errorf("bufferpool: dup memfd: %w", err)
				}
				b.Datas = append(b.Datas, Plane{
					Type:      MemFd,
					Flags:     Readable | Writable | Mappable,
					Fd:        fd,
					MapOffset: uint32(i * params.Size),
					MaxSize:   uint32(params.Size),
					Chunk:     Chunk{Stride: uint32(params.Stride)},
					Data:      shm.view(i*params.Size, params.Size),
				})
			} else {
				b.Datas = append(b.Datas, Plane{
					Type:    MemPtr,
					Flags:   Readable | Writable,
					Fd:      -1,
					MaxSize: uint32(params.Size),
					Chunk:   Chunk{Stride: uint32(params.Stride)},
					Data:    make([]byte, params.Size),
				})
			}
		}

		p.buffers[i] = b
		p.freeQueue = append(p.freeQueue, i)
	}

	p.built = true
	return nil
}

// NumBuffers returns the pool's fixed buffer count, or 0 if not yet built.
func (p *Pool) NumBuffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffers)
}

// Buffer returns the buffer for id, regardless of its ownership state.
func (p *Pool) Buffer(id int) (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.buffers) {
		return nil, false
	}
	return p.buffers[id], true
}

// Dequeue moves the earliest-queued free buffer to in-flight and
// returns it (FIFO). Returns ok=false if none are free.
func (p *Pool) Dequeue() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.freeQueue) == 0 {
		return nil, false
	}
	id := p.freeQueue[0]
	p.freeQueue = p.freeQueue[1:]

	b := p.buffers[id]
	b.owner = inFlight
	return b, true
}

// Queue returns buffer b to the pool (in-flight -> returned), making it
// eligible for the peer/scheduler to recycle via Recycle.
func (p *Pool) Queue(b *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b.owner != inFlight {
		return fmt.Errorf("bufferpool: buffer %d is not in-flight", b.Id)
	}
	b.owner = returned
	p.returnQueue = append(p.returnQueue, b.Id)
	return nil
}

// Recycle drains the return queue back to the free queue, as the
// scheduler does once a cycle completes and a peer's I/O area has been
// consumed (spec.md §4.3's returned -> free transition).
func (p *Pool) Recycle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.returnQueue {
		p.buffers[id].owner = free
		p.freeQueue = append(p.freeQueue, id)
	}
	p.returnQueue = p.returnQueue[:0]
}

// Close releases the pool's shared memory region, if any.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shm != nil {
		return p.shm.close()
	}
	return nil
}

// sharedRegion wraps a single sealed, truncated memfd shared by every
// buffer in a MemFd-backed pool; each buffer gets a duplicated fd at a
// distinct offset, as spec.md §4.3 specifies.
type sharedRegion struct {
	fd   int
	size uint64
	data []byte
}

func newSharedRegion(name string, size uint64) (*sharedRegion, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &sharedRegion{fd: fd, size: size, data: data}, nil
}

func (s *sharedRegion) dup() (int, error) {
	return unix.Dup(s.fd)
}

func (s *sharedRegion) view(offset, size int) []byte {
	return s.data[offset : offset+size]
}

func (s *sharedRegion) close() error {
	if s.data != nil {
		unix.Munmap(s.data)
		s.data = nil
	}
	return unix.Close(s.fd)
}
