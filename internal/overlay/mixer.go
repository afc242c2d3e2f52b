// Package overlay mixes sound-effect audio into the main output stream.
// The effect player pushes resampled stereo frames into a ring buffer;
// the drain task pulls them out during its mix step, ducking the main
// stream while effect audio remains.
package overlay

import (
	"errors"
	"log/slog"
	"sync"
)

const (
	// MaxSampleRate bounds the ring sizing; ~100ms of stereo frames at
	// the highest supported output rate.
	MaxSampleRate  = 96000
	ringDurationMs = 100

	// Duck gains in Q15: the main stream drops to ~0.2 (-14 dB) while
	// an effect plays, ramping linearly by duckRampStep per frame so
	// the full transition takes ~10ms at 96kHz. A linear ramp keeps the
	// transition time predictable, unlike an exponential curve.
	unityQ15      = 32767
	duckGainQ15   = 6554
	duckRampStep  = 328
	maxInt32Sum   = 2147483647
	minInt32Sum   = -2147483648
)

var ErrBadCapacity = errors.New("overlay ring capacity must be positive")

// Mixer is a mutex-guarded circular buffer of stereo int32 frames plus
// the ducking envelope state. Push never overwrites unread data and
// MixInto degrades to pass-through when the ring is empty.
type Mixer struct {
	logger *slog.Logger

	mu sync.Mutex

	ring     []int32 // interleaved stereo, 2*capacity entries
	capacity int

	writeIdx        int
	readIdx         int
	framesAvailable int

	active      bool
	duckGain    int32 // Q15
	targetGain  int32 // Q15
}

// NewMixer builds a mixer sized for ringDurationMs at MaxSampleRate.
func NewMixer() *Mixer {
	capacity := MaxSampleRate * ringDurationMs / 1000
	m, _ := NewMixerWithCapacity(capacity)
	return m
}

// NewMixerWithCapacity builds a mixer holding exactly capacity stereo
// frames. Tests use small capacities to exercise the clipping paths.
func NewMixerWithCapacity(capacity int) (*Mixer, error) {
	if capacity <= 0 {
		return nil, ErrBadCapacity
	}
	m := &Mixer{
		logger:     slog.Default().With("component", "overlay"),
		ring:       make([]int32, 2*capacity),
		capacity:   capacity,
		duckGain:   unityQ15,
		targetGain: unityQ15,
	}
	m.logger.Debug("overlay mixer initialized", "frames", capacity)
	return m, nil
}

// Push copies stereo frames from samples (interleaved, 2*frames entries)
// into the ring. If the ring lacks space the excess is silently clipped;
// unread data is never overwritten. Marks the overlay active and sets
// the duck target so the main stream starts ramping down.
func (m *Mixer) Push(samples []int32, frames int) int {
	if frames <= 0 {
		return 0
	}
	if frames > len(samples)/2 {
		frames = len(samples) / 2
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	free := m.capacity - m.framesAvailable
	if frames > free {
		frames = free
	}

	for i := 0; i < frames; i++ {
		idx := ((m.writeIdx + i) % m.capacity) * 2
		m.ring[idx] = samples[i*2]
		m.ring[idx+1] = samples[i*2+1]
	}
	m.writeIdx = (m.writeIdx + frames) % m.capacity
	m.framesAvailable += frames

	m.active = true
	m.targetGain = duckGainQ15
	return frames
}

// MixInto blends queued overlay frames into out (interleaved stereo,
// 2*frames entries), ramping the duck gain one step per frame and
// applying it to the main-stream samples. Overlay samples are added with
// saturation. When the ring empties the duck target resets to unity so
// the main stream ramps back up.
func (m *Mixer) MixInto(out []int32, frames int) {
	if frames > len(out)/2 {
		frames = len(out) / 2
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < frames; i++ {
		// Linear ramp toward the target, clamped at the target.
		if m.duckGain < m.targetGain {
			m.duckGain += duckRampStep
			if m.duckGain > m.targetGain {
				m.duckGain = m.targetGain
			}
		} else if m.duckGain > m.targetGain {
			m.duckGain -= duckRampStep
			if m.duckGain < m.targetGain {
				m.duckGain = m.targetGain
			}
		}

		l := int32(int64(out[i*2]) * int64(m.duckGain) >> 15)
		r := int32(int64(out[i*2+1]) * int64(m.duckGain) >> 15)

		if m.framesAvailable > 0 {
			idx := (m.readIdx % m.capacity) * 2

			sumL := int64(l) + int64(m.ring[idx])
			sumR := int64(r) + int64(m.ring[idx+1])
			if sumL > maxInt32Sum {
				sumL = maxInt32Sum
			}
			if sumL < minInt32Sum {
				sumL = minInt32Sum
			}
			if sumR > maxInt32Sum {
				sumR = maxInt32Sum
			}
			if sumR < minInt32Sum {
				sumR = minInt32Sum
			}
			l = int32(sumL)
			r = int32(sumR)

			m.readIdx = (m.readIdx + 1) % m.capacity
			m.framesAvailable--
		}

		out[i*2] = l
		out[i*2+1] = r
	}

	if m.framesAvailable == 0 && m.active {
		m.active = false
		m.targetGain = unityQ15
	}
}

// Active reports whether effect audio is queued or the duck envelope has
// not yet recovered to unity.
func (m *Mixer) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active || m.duckGain < unityQ15
}

// FramesAvailable returns the number of queued overlay frames.
func (m *Mixer) FramesAvailable() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.framesAvailable
}

// Capacity returns the fixed ring capacity in frames.
func (m *Mixer) Capacity() int { return m.capacity }

// DuckGain returns the current duck gain in Q15, for diagnostics and
// ramp verification.
func (m *Mixer) DuckGain() int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duckGain
}

// Clear discards queued overlay audio and resets the duck target to
// unity. Used when effect playback is cancelled.
func (m *Mixer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeIdx = 0
	m.readIdx = 0
	m.framesAvailable = 0
	m.active = false
	m.targetGain = unityQ15
}
