package dsp

import "math"

// Stage-presence crossfeed parameters. Bass below the crossover stays
// tight and centered while mids and highs are widened, reflected and
// phase-decorrelated so the stereo image sits in front of the listener
// rather than inside the head.
const (
	crossfeedMaxDelay = 256 // power of two for cheap index wrap

	crossfeedBassCrossoverHz = 180.0
	crossfeedMidWidth        = 2.2

	crossfeedReflect1Ms   = 8.0
	crossfeedReflect2Ms   = 15.0
	crossfeedReflect3Ms   = 23.0
	crossfeedReflectGain1 = 0.25
	crossfeedReflectGain2 = 0.18
	crossfeedReflectGain3 = 0.12

	crossfeedDepthDelayMs = 4.0
	crossfeedDepthGain    = 0.35

	crossfeedAllpassCoef1 = 0.6
	crossfeedAllpassCoef2 = -0.4
)

// Crossfeed is the 3D-sound processor: bass/mid separation, mid-side
// widening, early-reflection taps, a depth tap and two cascaded all-pass
// stages for phase decorrelation.
type Crossfeed struct {
	delayL   [crossfeedMaxDelay]float32
	delayR   [crossfeedMaxDelay]float32
	writeIdx int

	reflect1Samples int
	reflect2Samples int
	reflect3Samples int
	depthSamples    int

	bassLpCoef float32
	bassStateL float32
	bassStateR float32

	apState1L float32
	apState1R float32
	apState2L float32
	apState2R float32
}

// Init derives the tap offsets and the bass split coefficient for the
// sample rate and clears all delay state.
func (c *Crossfeed) Init(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	fs := float64(sampleRate)

	clampTap := func(ms float64) int {
		n := int(fs * ms * 0.001)
		if n >= crossfeedMaxDelay {
			n = crossfeedMaxDelay - 1
		}
		return n
	}
	c.reflect1Samples = clampTap(crossfeedReflect1Ms)
	c.reflect2Samples = clampTap(crossfeedReflect2Ms)
	c.reflect3Samples = clampTap(crossfeedReflect3Ms)
	c.depthSamples = clampTap(crossfeedDepthDelayMs)

	wc := 2 * math.Pi * crossfeedBassCrossoverHz
	c.bassLpCoef = float32(wc / (wc + fs))

	c.Reset()
}

// Reset clears the delay buffers and filter state.
func (c *Crossfeed) Reset() {
	c.delayL = [crossfeedMaxDelay]float32{}
	c.delayR = [crossfeedMaxDelay]float32{}
	c.writeIdx = 0
	c.bassStateL, c.bassStateR = 0, 0
	c.apState1L, c.apState1R = 0, 0
	c.apState2L, c.apState2R = 0, 0
}

// softClip applies a cubic saturation limited to the unit range, gentler
// than a hard clip on the summed reflections.
func softClip(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x * (1.5 - 0.5*x*x)
}

// Process transforms one stereo sample in place.
func (c *Crossfeed) Process(l, r *float32) {
	// Bass split: one-pole low pass per channel, recombined centered.
	c.bassStateL += c.bassLpCoef * (*l - c.bassStateL)
	c.bassStateR += c.bassLpCoef * (*r - c.bassStateR)
	bassMono := (c.bassStateL + c.bassStateR) * 0.5

	midHighL := *l - c.bassStateL
	midHighR := *r - c.bassStateR

	// Mid-side widening on the mid/high band only.
	mid := (midHighL + midHighR) * 0.5
	side := (midHighL - midHighR) * 0.5 * crossfeedMidWidth
	wideL := mid + side
	wideR := mid - side

	c.delayL[c.writeIdx] = wideL
	c.delayR[c.writeIdx] = wideR

	idx1 := (c.writeIdx - c.reflect1Samples) & (crossfeedMaxDelay - 1)
	idx2 := (c.writeIdx - c.reflect2Samples) & (crossfeedMaxDelay - 1)
	idx3 := (c.writeIdx - c.reflect3Samples) & (crossfeedMaxDelay - 1)
	depthIdx := (c.writeIdx - c.depthSamples) & (crossfeedMaxDelay - 1)

	// Reflections 1 and 3 cross channels, 2 bounces same-side.
	refL := c.delayR[idx1]*crossfeedReflectGain1 +
		c.delayL[idx2]*crossfeedReflectGain2 +
		c.delayR[idx3]*crossfeedReflectGain3
	refR := c.delayL[idx1]*crossfeedReflectGain1 +
		c.delayR[idx2]*crossfeedReflectGain2 +
		c.delayL[idx3]*crossfeedReflectGain3

	depthL := c.delayL[depthIdx] * crossfeedDepthGain
	depthR := c.delayR[depthIdx] * crossfeedDepthGain

	// Two all-pass stages decorrelate phase for externalization.
	ap1L := crossfeedAllpassCoef1*wideL + c.apState1L
	c.apState1L = wideL - crossfeedAllpassCoef1*ap1L
	ap1R := crossfeedAllpassCoef1*wideR + c.apState1R
	c.apState1R = wideR - crossfeedAllpassCoef1*ap1R

	ap2L := crossfeedAllpassCoef2*ap1L + c.apState2L
	c.apState2L = ap1L - crossfeedAllpassCoef2*ap2L
	ap2R := crossfeedAllpassCoef2*ap1R + c.apState2R
	c.apState2R = ap1R - crossfeedAllpassCoef2*ap2R

	extL := wideL*0.5 + ap2L*0.5
	extR := wideR*0.5 + ap2R*0.5

	*l = softClip(bassMono*0.9 + extL*0.65 + depthL + refL)
	*r = softClip(bassMono*0.9 + extR*0.65 + depthR + refR)

	c.writeIdx = (c.writeIdx + 1) & (crossfeedMaxDelay - 1)
}
