package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessorDefaults(t *testing.T) {
	p := NewProcessor(44100)

	assert.Equal(t, 44100, p.SampleRate())
	assert.Equal(t, uint8(MaxVolume), p.Volume())
	assert.True(t, p.Analysis())
	assert.False(t, p.BassBoost())
	assert.False(t, p.ChannelFlip())
	assert.False(t, p.Bypass())
	assert.False(t, p.Sound3D())
	assert.False(t, p.eqActive)
}

func TestNewProcessorZeroRateFallsBack(t *testing.T) {
	p := NewProcessor(0)
	assert.Equal(t, DefaultSampleRate, p.SampleRate())
}

func TestSetSampleRate(t *testing.T) {
	p := NewProcessor(44100)

	p.SetSampleRate(48000)
	assert.Equal(t, 48000, p.SampleRate())

	// A zero rate falls back to the default.
	p.SetSampleRate(0)
	assert.Equal(t, DefaultSampleRate, p.SampleRate())
}

func TestSetSampleRateResetsFilterState(t *testing.T) {
	p := NewProcessor(44100)

	// Drive some state into the filters.
	for i := 0; i < 100; i++ {
		l, r := float32(0.5), float32(-0.5)
		p.ProcessStereo(&l, &r)
	}
	require.NotEqual(t, float32(0), p.crossoverLP.y1)

	p.SetSampleRate(48000)
	assert.Equal(t, float32(0), p.crossoverLP.y1)
	assert.Equal(t, float32(0), p.crossoverLP.y2)
}

func TestEQActivationThreshold(t *testing.T) {
	p := NewProcessor(44100)
	assert.False(t, p.eqActive)

	p.SetEQ(1, 0, 0)
	assert.True(t, p.eqActive)

	p.SetEQ(0, 0, 0)
	assert.False(t, p.eqActive)

	p.SetEQ(0, 0, -4)
	assert.True(t, p.eqActive)
}

func TestSetEQScalesGains(t *testing.T) {
	p := NewProcessor(44100)

	p.SetEQ(10, 10, 10)
	bass, mid, treble := p.EQ()
	assert.InDelta(t, 10*eqBassScale, bass, 1e-6)
	assert.InDelta(t, 10*eqMidScale, mid, 1e-6)
	assert.InDelta(t, 10*eqTrebleScale, treble, 1e-6)
}

func TestBassCompensationFollowsVolume(t *testing.T) {
	p := NewProcessor(44100)

	// Full volume needs no compensation.
	p.SetVolume(MaxVolume)
	assert.InDelta(t, 0, p.BassCompensationDB(), 1e-6)
	assert.False(t, p.bassCompActive)

	// Zero volume gets the full boost.
	p.SetVolume(0)
	assert.InDelta(t, bassCompMaxDB, p.BassCompensationDB(), 1e-6)
	assert.True(t, p.bassCompActive)

	// Midway follows the squared curve.
	p.SetVolume(64)
	frac := 1 - float64(64)/MaxVolume
	assert.InDelta(t, bassCompMaxDB*frac*frac, p.BassCompensationDB(), 1e-4)
}

func TestSetVolumeClamps(t *testing.T) {
	p := NewProcessor(44100)
	p.SetVolume(200)
	assert.Equal(t, uint8(MaxVolume), p.Volume())
}

func TestVisualBoost(t *testing.T) {
	p := NewProcessor(44100)

	p.SetVolume(MaxVolume)
	assert.InDelta(t, 1.0, p.VisualBoost(), 1e-3)

	// Low volume boosts the display, capped at 100x.
	p.SetVolume(0)
	assert.InDelta(t, 100.0, p.VisualBoost(), 1e-3)

	p.SetVolume(13)
	boost := p.VisualBoost()
	assert.Greater(t, boost, float32(9))
	assert.Less(t, boost, float32(11))
}

func TestControlByteRoundTrip(t *testing.T) {
	p := NewProcessor(44100)
	assert.Equal(t, uint8(0), p.ControlByte())

	p.SetBassBoost(true)
	p.SetBypass(true)
	v := p.ControlByte()
	assert.Equal(t, uint8(ctrlBassBoost|ctrlBypass), v)

	q := NewProcessor(44100)
	q.ApplyControlByte(v)
	assert.True(t, q.BassBoost())
	assert.False(t, q.ChannelFlip())
	assert.True(t, q.Bypass())

	q.ApplyControlByte(0)
	assert.False(t, q.BassBoost())
	assert.False(t, q.Bypass())
}

func TestBypassPassesThrough(t *testing.T) {
	p := NewProcessor(44100)
	p.SetBypass(true)

	l, r := float32(0.25), float32(-0.5)
	p.ProcessStereo(&l, &r)
	assert.InDelta(t, 0.25, l, 1e-6)
	assert.InDelta(t, -0.5, r, 1e-6)
}

func TestOutputHardLimited(t *testing.T) {
	p := NewProcessor(44100)
	p.SetBypass(true)

	l, r := float32(3.0), float32(-3.0)
	p.ProcessStereo(&l, &r)
	assert.Equal(t, float32(1), l)
	assert.Equal(t, float32(-1), r)
}

func TestClampUnit(t *testing.T) {
	assert.Equal(t, float32(1), clampUnit(2))
	assert.Equal(t, float32(-1), clampUnit(-2))
	assert.Equal(t, float32(0.5), clampUnit(0.5))
}

func TestCrossoverSplitRouting(t *testing.T) {
	p := NewProcessor(44100)

	// DC into the split: the low-pass ear converges to the input level
	// (times gain compensation), the high-pass ear decays to silence.
	var l, r float32
	for i := 0; i < 20000; i++ {
		l, r = 0.25, 0.25
		p.ProcessStereo(&l, &r)
	}
	assert.InDelta(t, 0.25*crossoverGainComp, l, 0.01)
	assert.InDelta(t, 0, r, 0.01)
}

func TestChannelFlipSwapsEars(t *testing.T) {
	p := NewProcessor(44100)
	p.SetChannelFlip(true)

	var l, r float32
	for i := 0; i < 20000; i++ {
		l, r = 0.25, 0.25
		p.ProcessStereo(&l, &r)
	}
	// Bands swap sides: the low band now lands on the right.
	assert.InDelta(t, 0, l, 0.01)
	assert.InDelta(t, 0.25*crossoverGainComp, r, 0.01)
}

func TestAnalysisLevels(t *testing.T) {
	p := NewProcessor(44100)
	p.SetBypass(true)

	// A DC offset excites the sub-bass meters immediately.
	for i := 0; i < 4410; i++ {
		l, r := float32(0.5), float32(0.5)
		p.ProcessStereo(&l, &r)
	}
	assert.Greater(t, p.PeakLin(0), float32(0.2))

	p.ZeroLevels()
	assert.Equal(t, float32(0), p.PeakLin(0))
	assert.Equal(t, float32(0), p.GoertzelLin(0))
	assert.Equal(t, float32(-60), p.GoertzelDB(0))
}

func TestAnalysisDisabled(t *testing.T) {
	p := NewProcessor(44100)
	p.SetBypass(true)
	p.SetAnalysis(false)

	for i := 0; i < 4410; i++ {
		l, r := float32(0.5), float32(0.5)
		p.ProcessStereo(&l, &r)
	}
	assert.Equal(t, float32(0), p.PeakLin(0))
}
