// Package ring implements a fixed-size, power-of-two, single-producer
// single-consumer byte ring buffer with atomic read/write indices and
// wrap-around semantics, matching spa/include/spa/utils/ringbuffer.h.
//
// Exactly one goroutine may call the write side (Write*) and exactly
// one goroutine may call the read side (Read*); the two may run
// concurrently without locks. Indices are unbounded counters; the
// offset into the backing array is index & (size-1).
package ring

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a lock-free SPSC ring buffer over a power-of-two byte area.
type Buffer struct {
	data []byte
	mask uint32

	// readIndex is written only by the reader, read by the writer to
	// compute free space (acquire semantics on the writer's load).
	readIndex atomic.Uint32

	// writeIndex is written only by the writer, read by the reader to
	// compute available data (acquire semantics on the reader's load).
	writeIndex atomic.Uint32
}

// NewBuffer allocates a ring of the given size, which must be a power
// of two, and returns an error otherwise.
func NewBuffer(size uint32) (*Buffer, error) {
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("ring: size %d is not a power of two", size)
	}
	return &Buffer{
		data: make([]byte, size),
		mask: size - 1,
	}, nil
}

// Size returns the capacity of the ring, in bytes.
func (b *Buffer) Size() uint32 {
	return b.mask + 1
}

// GetReadIndex returns the reader's current index and the number of
// bytes available to read. avail is computed as a signed difference so
// that a producer running far ahead (overrun) or a reader running ahead
// of a reset writer (underrun) is observable rather than silently
// wrapped.
func (b *Buffer) GetReadIndex() (index uint32, avail int32) {
	index = b.readIndex.Load()
	avail = int32(b.writeIndex.Load() - index)
	return index, avail
}

// GetWriteIndex returns the writer's current index and the number of
// bytes already filled (size - filled is the free space).
func (b *Buffer) GetWriteIndex() (index uint32, filled int32) {
	index = b.writeIndex.Load()
	filled = int32(index - b.readIndex.Load())
	return index, filled
}

// ReadUpdate publishes a new read index, releasing the space up to it
// back to the writer. Must be called by the reader after ReadData.
func (b *Buffer) ReadUpdate(index uint32) {
	b.readIndex.Store(index)
}

// WriteUpdate publishes a new write index, making the data up to it
// visible to the reader. Must be called by the writer after WriteData.
func (b *Buffer) WriteUpdate(index uint32) {
	b.writeIndex.Store(index)
}

// ReadData copies len(dst) bytes starting at the logical offset index
// into dst, splitting the copy across the wrap-around boundary as
// needed. The caller must ensure len(dst) does not exceed the ring size
// and does not exceed what GetReadIndex reported available.
func (b *Buffer) ReadData(index uint32, dst []byte) {
	b.copyOut(index, dst)
}

// WriteData copies src into the ring starting at the logical offset
// index, splitting the copy across the wrap-around boundary as needed.
// The caller must ensure len(src) does not exceed the ring size and
// does not exceed the free space reported by GetWriteIndex.
func (b *Buffer) WriteData(index uint32, src []byte) {
	b.copyIn(index, src)
}

func (b *Buffer) copyOut(index uint32, dst []byte) {
	size := b.Size()
	if uint32(len(dst)) > size {
		panic("ring: read length exceeds ring size")
	}

	off := index & b.mask
	n := copy(dst, b.data[off:])
	if n < len(dst) {
		copy(dst[n:], b.data[:uint32(len(dst))-uint32(n)])
	}
}

func (b *Buffer) copyIn(index uint32, src []byte) {
	size := b.Size()
	if uint32(len(src)) > size {
		panic("ring: write length exceeds ring size")
	}

	off := index & b.mask
	n := copy(b.data[off:], src)
	if n < len(src) {
		copy(b.data[:], src[n:])
	}
}

// Write is a convenience wrapper: it writes src as one transfer,
// publishing the new write index, and returns the number of bytes
// written (0 if there isn't enough free space).
func (b *Buffer) Write(src []byte) int {
	_, filled := b.GetWriteIndex()
	free := int32(b.Size()) - filled
	if int32(len(src)) > free {
		return 0
	}

	index, _ := b.GetWriteIndex()
	b.WriteData(index, src)
	b.WriteUpdate(index + uint32(len(src)))
	return len(src)
}

// Read is a convenience wrapper: it reads up to len(dst) bytes as one
// transfer, publishing the new read index, and returns the number of
// bytes read (0 if nothing is available).
func (b *Buffer) Read(dst []byte) int {
	index, avail := b.GetReadIndex()
	if avail <= 0 {
		return 0
	}

	n := len(dst)
	if int32(n) > avail {
		n = int(avail)
	}

	b.ReadData(index, dst[:n])
	b.ReadUpdate(index + uint32(n))
	return n
}
