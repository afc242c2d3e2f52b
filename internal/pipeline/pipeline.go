// Package pipeline decouples the wireless decode callback from the
// audio output. The producer enqueues raw PCM into pooled buffers; a
// dedicated drain goroutine dequeues, runs the DSP chain, mixes overlay
// audio and writes to the hardware output.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/auricle-audio/auricle/internal/bufpool"
	"github.com/auricle-audio/auricle/internal/dsp"
	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/overlay"
	"github.com/auricle-audio/auricle/pkg/frame"
)

const (
	// Adaptive drain timeouts: short while audio is streaming to keep
	// latency down, long while idle to stop the drain goroutine from
	// spinning on an empty queue.
	activeTimeout = 5 * time.Millisecond
	idleTimeout   = 20 * time.Millisecond

	// Every dropLogInterval-th dropped chunk is logged; drops under
	// load are expected and must not flood the log.
	dropLogInterval = 500

	// DefaultOutFrames is the DSP output buffer capacity in stereo
	// frames; incoming buffers are capped at this many frames.
	DefaultOutFrames = 2048
)

var ErrNilDependency = errors.New("pipeline requires pool, dsp and output")

// SkipWriter is the injected predicate telling the drain task that an
// exclusive effect currently owns the output, so decoded audio must be
// processed but not written.
type SkipWriter interface {
	ExclusiveActive() bool
}

// Pipeline owns the queue pair, the DSP invocation and the output
// write. Enqueue runs on the producer's goroutine and never blocks or
// allocates; Run owns the consumer side.
type Pipeline struct {
	logger *slog.Logger

	pool  *bufpool.Pool
	dsp   *dsp.Processor
	out   *output.Output
	mixer *overlay.Mixer
	skip  SkipWriter

	// staging receives a copy of each dequeued buffer before processing.
	// On the original hardware this is a fast-memory latency
	// optimization; the copy also keeps the pooled buffer read-only
	// during DSP so it can be recycled early on future changes.
	staging []byte
	dspOut  []int32

	dropCount    atomic.Uint64
	enqueueFails atomic.Uint64
	writeCount   atomic.Uint64

	audioActive atomic.Bool
	wasSkipping bool
}

// Config wires the pipeline's collaborators. Mixer and Skip are
// optional; everything else is required.
type Config struct {
	Pool      *bufpool.Pool
	DSP       *dsp.Processor
	Output    *output.Output
	Mixer     *overlay.Mixer
	Skip      SkipWriter
	OutFrames int
}

// New validates the wiring and builds a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Pool == nil || cfg.DSP == nil || cfg.Output == nil {
		return nil, ErrNilDependency
	}
	outFrames := cfg.OutFrames
	if outFrames <= 0 {
		outFrames = DefaultOutFrames
	}

	p := &Pipeline{
		logger:  slog.Default().With("component", "pipeline"),
		pool:    cfg.Pool,
		dsp:     cfg.DSP,
		out:     cfg.Output,
		mixer:   cfg.Mixer,
		skip:    cfg.Skip,
		staging: make([]byte, cfg.Pool.BufferSize()),
		dspOut:  make([]int32, outFrames*2),
	}
	p.logger.Info(
		"pipeline initialized",
		"poolBuffers", cfg.Pool.Capacity(),
		"bufferSize", cfg.Pool.BufferSize(),
		"outFrames", outFrames,
	)
	return p, nil
}

// Enqueue splits data into pool-buffer-sized chunks and submits each to
// the ready queue. Runs on the producer's goroutine: it never blocks and
// never allocates. When the free queue is empty the remainder of the
// call is dropped, counting one drop per abandoned chunk; when the
// ready queue refuses a chunk the buffer goes back to the free queue
// and the failure is counted.
func (p *Pipeline) Enqueue(data []byte, bits, channels uint8) {
	if len(data) == 0 {
		return
	}
	p.audioActive.Store(true)

	remaining := data
	for len(remaining) > 0 {
		buf, ok := p.pool.AcquireFree()
		if !ok {
			bufSize := p.pool.BufferSize()
			abandoned := uint64((len(remaining) + bufSize - 1) / bufSize)
			drops := p.dropCount.Add(abandoned)
			if drops%dropLogInterval < abandoned {
				p.logger.Warn("audio buffers dropped", "total", drops)
			}
			return
		}

		n := copy(buf.Data[:cap(buf.Data)], remaining)
		buf.Len = n
		buf.Bits = bits
		buf.Channels = channels

		if !p.pool.SubmitReady(buf) {
			p.enqueueFails.Add(1)
			p.pool.ReleaseFree(buf)
			return
		}
		remaining = remaining[n:]
	}
}

// Run drives the drain loop until ctx is cancelled. It is the dedicated
// consumer goroutine; nothing else may call ProcessOnce concurrently.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Debug("drain loop started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("drain loop stopped")
			return
		default:
			p.ProcessOnce()
		}
	}
}

// ProcessOnce performs one drain iteration: wait for a ready buffer with
// the adaptive timeout, run DSP and overlay mixing, and write to the
// output unless an exclusive effect claims it. The buffer is always
// returned to the free queue.
func (p *Pipeline) ProcessOnce() {
	skipWrite := p.skip != nil && p.skip.ExclusiveActive()

	// On the transition into skipping, silence the hardware buffer for
	// an instant, pop-free handover to the exclusive effect.
	if skipWrite && !p.wasSkipping {
		p.out.ZeroSilence()
	}
	p.wasSkipping = skipWrite

	timeout := idleTimeout
	if p.audioActive.Load() {
		timeout = activeTimeout
	}

	buf, ok := p.pool.TakeReady(timeout)
	if !ok {
		// Only a short-timeout expiry marks the stream idle; the idle
		// timeout expiring is the steady state of silence.
		if timeout == activeTimeout {
			p.audioActive.Store(false)
		}
		return
	}
	defer p.pool.ReleaseFree(buf)

	n := copy(p.staging, buf.Data[:buf.Len])
	data := p.staging[:n]

	channels := buf.Channels
	if channels == 0 {
		channels = 2
	}
	frames := frame.Count(n, buf.Bits, channels)
	if frames == 0 {
		return
	}
	if frames > len(p.dspOut)/2 {
		frames = len(p.dspOut) / 2
	}

	if frame.BytesPerSample(buf.Bits) == 2 {
		p.process16(data, frames, int(channels))
	} else {
		p.process32(data, frames, int(channels))
	}

	if p.mixer != nil {
		p.mixer.MixInto(p.dspOut, frames)
	}

	if !skipWrite {
		// The output wiring clocks the first sample of each frame to
		// the right speaker, so swap to [R, L] before writing.
		for f := 0; f < frames; f++ {
			p.dspOut[f*2], p.dspOut[f*2+1] = p.dspOut[f*2+1], p.dspOut[f*2]
		}
		p.out.Write(p.dspOut[:frames*2])
		p.writeCount.Add(1)
	}
}

func (p *Pipeline) process16(data []byte, frames, channels int) {
	for i := 0; i < frames; i++ {
		var l, r float32
		if channels == 1 {
			l = float32(frame.Int16At(data, i)) * frame.Scale16In
			r = l
		} else {
			l = float32(frame.Int16At(data, i*channels)) * frame.Scale16In
			r = float32(frame.Int16At(data, i*channels+1)) * frame.Scale16In
		}
		p.dsp.ProcessStereo(&l, &r)
		p.dspOut[i*2] = frame.ClampInt32(l * frame.Scale32Out)
		p.dspOut[i*2+1] = frame.ClampInt32(r * frame.Scale32Out)
	}
}

func (p *Pipeline) process32(data []byte, frames, channels int) {
	for i := 0; i < frames; i++ {
		var l, r float32
		if channels == 1 {
			l = float32(frame.Int32At(data, i)) * frame.Scale32In
			r = l
		} else {
			l = float32(frame.Int32At(data, i*channels)) * frame.Scale32In
			r = float32(frame.Int32At(data, i*channels+1)) * frame.Scale32In
		}
		p.dsp.ProcessStereo(&l, &r)
		p.dspOut[i*2] = frame.ClampInt32(l * frame.Scale32Out)
		p.dspOut[i*2+1] = frame.ClampInt32(r * frame.Scale32Out)
	}
}

// Clear drains all ready buffers back to the free queue without
// blocking and marks the stream idle. Safe to call repeatedly; a second
// call on an already-empty queue is a no-op.
func (p *Pipeline) Clear() {
	p.audioActive.Store(false)
	if n := p.pool.DrainReady(); n > 0 {
		p.logger.Debug("pipeline cleared", "buffers", n)
	}
}

// ClearWithSilence clears the queues and additionally forces the
// hardware buffer to silence for an immediate audible cutoff.
func (p *Pipeline) ClearWithSilence() {
	p.Clear()
	p.out.ZeroSilence()
}

// SetSampleRate performs the codec-change sequence: clear buffered
// audio at the old rate, reconfigure the DSP chain, then retune the
// output clock (which notifies its rate subscriber).
func (p *Pipeline) SetSampleRate(rate int) {
	p.Clear()
	p.dsp.SetSampleRate(rate)
	p.out.UpdateClock(rate)
}

// DropCount returns how many chunks were dropped for want of a free
// buffer.
func (p *Pipeline) DropCount() uint64 { return p.dropCount.Load() }

// EnqueueFailCount returns how many chunks were refused by the ready
// queue.
func (p *Pipeline) EnqueueFailCount() uint64 { return p.enqueueFails.Load() }

// WriteCount returns how many processed buffers reached the output.
func (p *Pipeline) WriteCount() uint64 { return p.writeCount.Load() }

// AudioActive reports whether the stream has produced data recently.
func (p *Pipeline) AudioActive() bool { return p.audioActive.Load() }

// FillPercent reports the ready-queue occupancy from 0 to 100.
func (p *Pipeline) FillPercent() int { return p.pool.FillPercent() }
