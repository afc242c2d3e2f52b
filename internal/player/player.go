// Package player streams sound-effect files to the audio output, either
// exclusively (replacing the main stream) or as an overlay mixed into
// it. One transient goroutine runs per playback session.
package player

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/overlay"
	"github.com/auricle-audio/auricle/pkg/frame"
)

// Mode selects how a session delivers audio.
type Mode int

const (
	// ModeExclusive writes directly to the output, replacing the main
	// stream (the pipeline's skip-write predicate observes this).
	ModeExclusive Mode = iota
	// ModeOverlay pushes into the overlay mixer, ducking the main
	// stream instead of replacing it.
	ModeOverlay
)

const (
	// inputChunkMs is how much source audio each streaming read covers.
	inputChunkMs = 20
	// maxPlaybackTime bounds any session against runaway playback.
	maxPlaybackTime = 10 * time.Second
	// maxConsecutiveWriteFailures aborts an exclusive session whose
	// writes keep being refused (output mid-reconfiguration or wedged).
	maxConsecutiveWriteFailures = 20
	// writeRetryDelay is the pause before retrying a refused write.
	writeRetryDelay = 10 * time.Millisecond
	// overlayPollDelay paces the backpressure wait on the mixer.
	overlayPollDelay = 5 * time.Millisecond
)

var (
	ErrMuted         = errors.New("effect playback is muted")
	ErrBusy          = errors.New("another effect session is active")
	ErrInvalidFormat = errors.New("effect file is not valid PCM audio")
)

// Opener provides read access to effect audio by name. Storage itself is
// outside this subsystem; only the open/read/seek contract matters here.
type Opener interface {
	Open(name string) (io.ReadSeekCloser, error)
}

// DirOpener serves effect files from a directory.
type DirOpener string

func (d DirOpener) Open(name string) (io.ReadSeekCloser, error) {
	return os.Open(filepath.Join(string(d), name))
}

// Player streams effect audio. Sessions are serialized by an atomic
// playing flag; at most one exclusive request may wait in the single
// pending slot.
type Player struct {
	logger *slog.Logger
	opener Opener
	out    *output.Output
	mixer  *overlay.Mixer

	targetRate  atomic.Int64
	rateChanged atomic.Bool

	playing       atomic.Bool
	exclusive     atomic.Bool
	stopRequested atomic.Bool
	muted         atomic.Bool

	mu          sync.Mutex
	pendingName string
	pendingSet  bool
}

// New builds a player delivering to out and mixer, reading effect audio
// through opener. The player subscribes itself to output clock changes
// so in-flight sessions retarget their resampler.
func New(opener Opener, out *output.Output, mixer *overlay.Mixer) *Player {
	p := &Player{
		logger: slog.Default().With("component", "player"),
		opener: opener,
		out:    out,
		mixer:  mixer,
	}
	p.targetRate.Store(int64(out.SampleRate()))
	out.OnRateChange(p.SetTargetRate)
	return p
}

// SetTargetRate records a new output rate. An in-flight session observes
// the change flag at chunk granularity and retargets its resampler.
func (p *Player) SetTargetRate(rate int) {
	p.targetRate.Store(int64(rate))
	p.rateChanged.Store(true)
}

// SetMuted enables or disables effect playback entirely.
func (p *Player) SetMuted(muted bool) {
	p.muted.Store(muted)
	p.logger.Info("effect playback mute changed", "muted", muted)
}

// Muted reports the mute state.
func (p *Player) Muted() bool { return p.muted.Load() }

// Playing reports whether a session is in flight.
func (p *Player) Playing() bool { return p.playing.Load() }

// ExclusiveActive reports whether an exclusive session currently claims
// the output. The pipeline's skip-write predicate queries this.
func (p *Player) ExclusiveActive() bool {
	return p.playing.Load() && p.exclusive.Load()
}

// Stop requests cooperative cancellation of the current session and
// discards any pending request.
func (p *Player) Stop() {
	p.stopRequested.Store(true)
	p.mu.Lock()
	p.pendingSet = false
	p.mu.Unlock()
}

// QueueNext stores name as the single pending exclusive request,
// replacing any earlier one.
func (p *Player) QueueNext(name string) {
	p.mu.Lock()
	p.pendingName = name
	p.pendingSet = true
	p.mu.Unlock()
}

// Play starts a playback session on its own goroutine. An exclusive
// request while a session is active is queued, not started; an overlay
// request while a session is active is refused.
func (p *Player) Play(name string, mode Mode) error {
	if p.muted.Load() {
		return ErrMuted
	}

	if !p.playing.CompareAndSwap(false, true) {
		if mode == ModeExclusive {
			p.QueueNext(name)
			p.logger.Info("effect queued behind active session", "name", name)
			return nil
		}
		return ErrBusy
	}

	p.exclusive.Store(mode == ModeExclusive)
	p.stopRequested.Store(false)

	sessionID := uuid.New()
	logger := p.logger.With("effect session uuid", sessionID, "name", name, "mode", mode)

	go p.runSession(logger, name, mode)
	return nil
}

// WaitForCompletion polls until the current session ends or timeout
// elapses.
func (p *Player) WaitForCompletion(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for p.playing.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// runSession owns one playback from open to completion, then starts the
// pending exclusive request, if any, before going idle.
func (p *Player) runSession(logger *slog.Logger, name string, mode Mode) {
	if err := p.stream(logger, name, mode); err != nil {
		logger.Error("effect playback aborted", "err", err)
	}

	p.mu.Lock()
	pendingName, pendingSet := p.pendingName, p.pendingSet
	p.pendingSet = false
	p.mu.Unlock()

	p.playing.Store(false)

	if pendingSet && !p.stopRequested.Load() {
		logger.Info("starting queued effect", "name", pendingName)
		if err := p.Play(pendingName, ModeExclusive); err != nil {
			logger.Error("queued effect failed to start", "err", err)
		}
	}
}

func (p *Player) stream(logger *slog.Logger, name string, mode Mode) error {
	f, err := p.opener.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return ErrInvalidFormat
	}
	if err := decoder.FwdToPCM(); err != nil {
		return ErrInvalidFormat
	}

	sourceRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	bits := int(decoder.BitDepth)
	if sourceRate <= 0 || (channels != 1 && channels != 2) || (bits != 8 && bits != 16) {
		return ErrInvalidFormat
	}
	stereo := channels == 2

	currentRate := int(p.targetRate.Load())
	p.rateChanged.Store(false)
	resampler := NewResampler(sourceRate, currentRate, stereo)

	logger.Info(
		"effect playback started",
		"sourceRate", sourceRate,
		"bits", bits,
		"channels", channels,
		"outputRate", currentRate,
	)

	chunkFrames := sourceRate * inputChunkMs / 1000
	if chunkFrames < 1 {
		chunkFrames = 1
	}
	// Size the output for the worst upsampling ratio so a mid-session
	// clock change never outgrows the buffer.
	maxOutFrames := chunkFrames*overlay.MaxSampleRate/sourceRate + 16

	intBuf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sourceRate},
		Data:   make([]int, chunkFrames*channels),
	}
	inS16 := make([]int16, chunkFrames*channels)
	outS32 := make([]int32, maxOutFrames*2)

	start := time.Now()
	consecutiveFailures := 0

	for !p.stopRequested.Load() {
		if time.Since(start) > maxPlaybackTime {
			logger.Warn("effect playback timeout", "elapsed", time.Since(start))
			break
		}

		if p.rateChanged.CompareAndSwap(true, false) {
			newRate := int(p.targetRate.Load())
			if newRate != currentRate {
				logger.Info("retargeting resampler", "from", currentRate, "to", newRate)
				currentRate = newRate
				resampler.Retarget(newRate)
			}
		}

		n, err := decoder.PCMBuffer(intBuf)
		if err != nil {
			return err
		}
		if n == 0 {
			break // end of data
		}

		for i := 0; i < n; i++ {
			if bits == 8 {
				inS16[i] = frame.U8ToS16(byte(intBuf.Data[i]))
			} else {
				inS16[i] = int16(intBuf.Data[i])
			}
		}

		inFrames := n / channels
		outFrames := resampler.Process(inS16, inFrames, outS32, maxOutFrames)
		if outFrames == 0 {
			continue
		}

		switch mode {
		case ModeExclusive:
			written := p.out.Write(outS32[:outFrames*2])
			if written == 0 {
				consecutiveFailures++
				if consecutiveFailures >= maxConsecutiveWriteFailures {
					logger.Warn("too many refused writes, aborting", "failures", consecutiveFailures)
					return nil
				}
				// Output may be mid-reconfiguration; back off briefly.
				time.Sleep(writeRetryDelay)
			} else {
				consecutiveFailures = 0
			}

		case ModeOverlay:
			// Backpressure on the mixer's actual fill level: wait for
			// room before pushing so nothing is clipped and the session
			// cannot outrun real time.
			for p.mixer.Capacity()-p.mixer.FramesAvailable() < outFrames &&
				!p.stopRequested.Load() {
				if time.Since(start) > maxPlaybackTime {
					break
				}
				time.Sleep(overlayPollDelay)
			}
			p.mixer.Push(outS32, outFrames)
		}
	}

	logger.Info("effect playback complete")
	return nil
}
