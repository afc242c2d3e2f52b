package bufpool

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrBadCount = errors.New("buffer pool count must be positive")
	ErrBadSize  = errors.New("buffer pool buffer size must be positive")
)

// Buffer is one fixed-capacity slab from the pool. Data is allocated once
// at pool construction and recycled forever; Len marks how much of it is
// valid for the current fill, Bits and Channels tag the PCM format the
// producer handed us.
type Buffer struct {
	Data     []byte
	Len      int
	Bits     uint8
	Channels uint8
}

// Cap returns the fixed capacity of the buffer slab.
func (b *Buffer) Cap() int { return cap(b.Data) }

// Pool owns a fixed set of audio buffers and the two bounded queues that
// transfer their ownership between the producer and the drain task.
//
// At any instant every buffer belongs to exactly one of: the free queue,
// the ready queue, or the caller that dequeued it ("in processing").
// The total across those three places always equals the pool size.
type Pool struct {
	logger *slog.Logger

	free  chan *Buffer
	ready chan *Buffer

	count   int
	bufSize int
}

// NewPool allocates count buffers of bufSize bytes each and places them
// all on the free queue. This is the only allocation the pool ever makes.
func NewPool(count, bufSize int) (*Pool, error) {
	if count <= 0 {
		return nil, ErrBadCount
	}
	if bufSize <= 0 {
		return nil, ErrBadSize
	}

	logger := slog.Default().With("component", "bufpool")

	p := &Pool{
		logger:  logger,
		free:    make(chan *Buffer, count),
		ready:   make(chan *Buffer, count),
		count:   count,
		bufSize: bufSize,
	}

	// One backing slab, sliced into per-buffer windows so the pool is a
	// single arena rather than count separate allocations.
	arena := make([]byte, count*bufSize)
	for i := 0; i < count; i++ {
		p.free <- &Buffer{
			Data:     arena[i*bufSize : (i+1)*bufSize : (i+1)*bufSize],
			Bits:     16,
			Channels: 2,
		}
	}

	logger.Info(
		"audio buffer pool allocated",
		"buffers", count,
		"bufferSize", bufSize,
		"totalKB", (count*bufSize)/1024,
	)
	return p, nil
}

// AcquireFree takes a buffer from the free queue without blocking.
// The second return is false when the pool is exhausted; the caller must
// treat that as a drop condition, not an error.
func (p *Pool) AcquireFree() (*Buffer, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
		return nil, false
	}
}

// ReleaseFree returns a buffer to the free queue. The queue is sized for
// the whole pool so this can only block if a buffer is released twice,
// which would already be an ownership violation.
func (p *Pool) ReleaseFree(b *Buffer) {
	if b == nil {
		return
	}
	b.Len = 0
	select {
	case p.free <- b:
	default:
		p.logger.Error("free queue overflow, buffer ownership violated")
	}
}

// SubmitReady hands a filled buffer to the consumer side without blocking.
// Returns false when the ready queue is full (consumer lagging further
// than the pool can absorb); the caller keeps ownership in that case.
func (p *Pool) SubmitReady(b *Buffer) bool {
	select {
	case p.ready <- b:
		return true
	default:
		return false
	}
}

// TakeReady waits up to timeout for a filled buffer. The second return is
// false when the wait expired with nothing available.
func (p *Pool) TakeReady(timeout time.Duration) (*Buffer, bool) {
	// Fast path avoids arming a timer when data is already waiting.
	select {
	case b := <-p.ready:
		return b, true
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case b := <-p.ready:
		return b, true
	case <-t.C:
		return nil, false
	}
}

// DrainReady moves every queued ready buffer back to the free queue
// without blocking. Used on stream stop and codec change.
func (p *Pool) DrainReady() int {
	n := 0
	for {
		select {
		case b := <-p.ready:
			p.ReleaseFree(b)
			n++
		default:
			return n
		}
	}
}

// Capacity returns the fixed number of buffers in the pool.
func (p *Pool) Capacity() int { return p.count }

// BufferSize returns the fixed byte capacity of each buffer.
func (p *Pool) BufferSize() int { return p.bufSize }

// FreeLen returns the number of buffers currently on the free queue.
func (p *Pool) FreeLen() int { return len(p.free) }

// ReadyLen returns the number of buffers currently on the ready queue.
func (p *Pool) ReadyLen() int { return len(p.ready) }

// FillPercent reports the ready queue occupancy from 0 to 100.
func (p *Pool) FillPercent() int {
	return (len(p.ready) * 100) / p.count
}

// String describes the pool geometry for diagnostics.
func (p *Pool) String() string {
	return fmt.Sprintf("bufpool(%d x %dB, free=%d ready=%d)",
		p.count, p.bufSize, len(p.free), len(p.ready))
}
