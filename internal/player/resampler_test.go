package player

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A resampler with the fade-in already elapsed, so tests can assert on
// raw sample values.
func newSettledResampler(inputRate, outputRate int, stereo bool) *Resampler {
	r := NewResampler(inputRate, outputRate, stereo)
	r.fadeInRemaining = 0
	return r
}

func TestResamplerRatio(t *testing.T) {
	r := NewResampler(22050, 44100, true)
	assert.InDelta(t, 0.5, r.Ratio(), 1e-9)

	r = NewResampler(44100, 44100, true)
	assert.InDelta(t, 1.0, r.Ratio(), 1e-9)

	// A zero output rate falls back to the default clock.
	r = NewResampler(44100, 0, true)
	assert.Equal(t, 44100, r.OutputRate())
}

func TestUnityRatioPassesSamplesThrough(t *testing.T) {
	r := newSettledResampler(44100, 44100, true)

	in := []int16{100, -100, 200, -200, 300, -300, 400, -400}
	out := make([]int32, 16)

	n := r.Process(in, 4, out, 8)
	// The final input frame is held back as the interpolation successor.
	assert.Equal(t, 3, n)

	assert.Equal(t, int32(100*65536), out[0])
	assert.Equal(t, int32(-100*65536), out[1])
	assert.Equal(t, int32(200*65536), out[2])
	assert.Equal(t, int32(-200*65536), out[3])
	assert.Equal(t, int32(300*65536), out[4])
	assert.Equal(t, int32(-300*65536), out[5])
}

func TestChunkBoundaryContinuity(t *testing.T) {
	r := newSettledResampler(44100, 44100, true)

	out := make([]int32, 32)
	n := r.Process([]int16{10, 10, 20, 20}, 2, out, 16)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(10*65536), out[0])

	// The held-back frame from the previous chunk leads the next one.
	n = r.Process([]int16{30, 30, 40, 40}, 2, out, 16)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(20*65536), out[0])
}

func TestUpsamplingProducesMoreFrames(t *testing.T) {
	r := newSettledResampler(22050, 44100, true)

	in := make([]int16, 200)
	for i := 0; i < 100; i++ {
		in[i*2] = int16(i * 100)
		in[i*2+1] = int16(i * 100)
	}
	out := make([]int32, 1024)

	n := r.Process(in, 100, out, 512)
	// Ratio 0.5 yields two output frames per input frame, minus the
	// held-back tail.
	assert.Equal(t, 198, n)

	// Midpoint interpolation between frames 0 (0) and 1 (100).
	assert.Equal(t, int32(0), out[0])
	assert.Equal(t, int32(50*65536), out[2])
	assert.Equal(t, int32(100*65536), out[4])
}

func TestMonoSourceDuplicatesChannels(t *testing.T) {
	r := newSettledResampler(44100, 44100, false)

	in := []int16{1000, 2000, 3000}
	out := make([]int32, 16)

	n := r.Process(in, 3, out, 8)
	assert.Equal(t, 2, n)
	assert.Equal(t, out[0], out[1])
	assert.Equal(t, out[2], out[3])
	assert.Equal(t, int32(1000*65536), out[0])
}

func TestFadeInEnvelope(t *testing.T) {
	r := NewResampler(44100, 44100, true)
	require.Greater(t, r.fadeInFrames, 0)
	assert.Equal(t, 441, r.fadeInFrames)

	in := make([]int16, 8)
	for i := range in {
		in[i] = 10000
	}
	out := make([]int32, 8)

	n := r.Process(in, 4, out, 4)
	require.Equal(t, 3, n)

	// First output frame is fully attenuated, later ones ramp up.
	assert.Equal(t, int32(0), out[0])
	assert.Less(t, out[2], int32(10000*65536))
	assert.Greater(t, out[4], out[2])
}

func TestRetargetPreservesPosition(t *testing.T) {
	r := newSettledResampler(44100, 96000, true)

	in := make([]int16, 64)
	out := make([]int32, 64)
	n := r.Process(in, 16, out, 16)
	require.Greater(t, n, 0)

	posBefore := r.Pos()
	r.Retarget(48000)

	assert.Equal(t, posBefore, r.Pos())
	assert.InDelta(t, 44100.0/48000.0, r.Ratio(), 1e-9)
	assert.Equal(t, 48000, r.OutputRate())
}

func TestRetargetRescalesFadeIn(t *testing.T) {
	r := NewResampler(44100, 44100, true)
	require.Equal(t, 441, r.fadeInFrames)

	// Mid-fade: 200 of 441 envelope frames still pending.
	r.fadeInRemaining = 200

	r.Retarget(88200)
	assert.Equal(t, 882, r.fadeInFrames)
	assert.Equal(t, 400, r.fadeInRemaining)

	// An elapsed fade stays elapsed across further retargets.
	r.fadeInRemaining = 0
	r.Retarget(44100)
	assert.Equal(t, 441, r.fadeInFrames)
	assert.Equal(t, 0, r.fadeInRemaining)
}

func TestProcessEmptyInput(t *testing.T) {
	r := newSettledResampler(44100, 44100, true)
	out := make([]int32, 8)
	assert.Equal(t, 0, r.Process(nil, 0, out, 4))
}

func TestOutputCapacityBound(t *testing.T) {
	r := newSettledResampler(22050, 44100, true)

	in := make([]int16, 200)
	out := make([]int32, 8)

	n := r.Process(in, 100, out, 4)
	assert.Equal(t, 4, n)
}
