package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossfeedTapOffsets(t *testing.T) {
	var c Crossfeed
	c.Init(44100)

	// All taps clamp inside the fixed delay line.
	assert.Less(t, c.reflect1Samples, crossfeedMaxDelay)
	assert.Less(t, c.reflect2Samples, crossfeedMaxDelay)
	assert.Less(t, c.reflect3Samples, crossfeedMaxDelay)
	assert.Less(t, c.depthSamples, crossfeedMaxDelay)

	// At 44.1kHz the longer reflections exceed 256 samples and sit at
	// the clamp; the depth tap fits exactly.
	assert.Equal(t, crossfeedMaxDelay-1, c.reflect2Samples)
	assert.Equal(t, crossfeedMaxDelay-1, c.reflect3Samples)
	assert.Equal(t, 176, c.depthSamples)
}

func TestCrossfeedOutputBounded(t *testing.T) {
	var c Crossfeed
	c.Init(44100)

	// Hammer the processor with full-scale noise-ish input; the soft
	// clipper keeps the output inside the unit range.
	for n := 0; n < 50000; n++ {
		l := float32(math.Sin(0.3 * float64(n)))
		r := float32(math.Sin(0.7*float64(n) + 1))
		c.Process(&l, &r)
		require.LessOrEqual(t, l, float32(1))
		require.GreaterOrEqual(t, l, float32(-1))
		require.LessOrEqual(t, r, float32(1))
		require.GreaterOrEqual(t, r, float32(-1))
	}
}

func TestCrossfeedSilenceInSilenceOut(t *testing.T) {
	var c Crossfeed
	c.Init(44100)

	for n := 0; n < 1000; n++ {
		l, r := float32(0), float32(0)
		c.Process(&l, &r)
		assert.Equal(t, float32(0), l)
		assert.Equal(t, float32(0), r)
	}
}

func TestCrossfeedResetClearsTail(t *testing.T) {
	var c Crossfeed
	c.Init(44100)

	// Excite the delay lines.
	for n := 0; n < 500; n++ {
		l, r := float32(0.9), float32(-0.9)
		c.Process(&l, &r)
	}

	c.Reset()

	// With cleared state, silence in produces silence out immediately,
	// no reverb tail from the previous signal.
	l, r := float32(0), float32(0)
	c.Process(&l, &r)
	assert.Equal(t, float32(0), l)
	assert.Equal(t, float32(0), r)
}

func TestCrossfeedWidensStereo(t *testing.T) {
	var c Crossfeed
	c.Init(44100)

	// A mid-band side-only signal: widening raises the inter-channel
	// difference relative to the dry input.
	var inDiff, outDiff float64
	for n := 0; n < 44100; n++ {
		x := float32(0.1 * math.Sin(2*math.Pi*1000*float64(n)/44100))
		l, r := x, -x
		inDiff += math.Abs(float64(l - r))
		c.Process(&l, &r)
		outDiff += math.Abs(float64(l - r))
	}
	assert.Greater(t, outDiff, inDiff)
}

func TestSoftClip(t *testing.T) {
	assert.Equal(t, float32(0), softClip(0))
	assert.Equal(t, float32(1), softClip(1))
	assert.Equal(t, float32(-1), softClip(-1))
	assert.Equal(t, float32(1), softClip(5))
	assert.Equal(t, float32(-1), softClip(-5))

	// Inside the range the curve is expansive near zero and compressive
	// toward the rails.
	assert.InDelta(t, 0.1495, softClip(0.1), 1e-3)
	assert.InDelta(t, 0.9855, softClip(0.9), 1e-3)
}
