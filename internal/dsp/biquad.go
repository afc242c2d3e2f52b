// Package dsp implements the per-sample signal chain: three-band EQ,
// volume-dependent bass compensation, spatial crossfeed, crossover
// split-ear routing, soft clipping, and spectral analysis.
package dsp

import "math"

// Biquad is a second-order IIR filter in direct form 1. The Make*
// methods compute RBJ cookbook coefficients; Reset clears the delay line
// without touching the coefficients.
type Biquad struct {
	b0, b1, b2 float32
	a1, a2     float32

	x1, x2 float32
	y1, y2 float32
}

// Process filters a single sample.
func (f *Biquad) Process(x float32) float32 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2 = f.x1
	f.x1 = x
	f.y2 = f.y1
	f.y1 = y
	return y
}

// Reset clears the delay line. Must be called after every sample-rate
// change or the stale state produces an audible transient.
func (f *Biquad) Reset() {
	f.x1, f.x2 = 0, 0
	f.y1, f.y2 = 0, 0
}

func (f *Biquad) set(b0, b1, b2, a0, a1, a2 float64) {
	inv := 1.0 / a0
	f.b0 = float32(b0 * inv)
	f.b1 = float32(b1 * inv)
	f.b2 = float32(b2 * inv)
	f.a1 = float32(a1 * inv)
	f.a2 = float32(a2 * inv)
}

// MakeLowShelf configures a low shelf at freq with the given gain in dB
// (shelf slope 1).
func (f *Biquad) MakeLowShelf(sampleRate, freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / 2 * math.Sqrt2
	sqrtA2Alpha := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) - (a-1)*cosw0 + sqrtA2Alpha)
	b1 := 2 * a * ((a - 1) - (a+1)*cosw0)
	b2 := a * ((a + 1) - (a-1)*cosw0 - sqrtA2Alpha)
	a0 := (a + 1) + (a-1)*cosw0 + sqrtA2Alpha
	a1 := -2 * ((a - 1) + (a+1)*cosw0)
	a2 := (a + 1) + (a-1)*cosw0 - sqrtA2Alpha
	f.set(b0, b1, b2, a0, a1, a2)
}

// MakeHighShelf configures a high shelf at freq with the given gain in dB
// (shelf slope 1).
func (f *Biquad) MakeHighShelf(sampleRate, freq, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / 2 * math.Sqrt2
	sqrtA2Alpha := 2 * math.Sqrt(a) * alpha

	b0 := a * ((a + 1) + (a-1)*cosw0 + sqrtA2Alpha)
	b1 := -2 * a * ((a - 1) + (a+1)*cosw0)
	b2 := a * ((a + 1) + (a-1)*cosw0 - sqrtA2Alpha)
	a0 := (a + 1) - (a-1)*cosw0 + sqrtA2Alpha
	a1 := 2 * ((a - 1) - (a+1)*cosw0)
	a2 := (a + 1) - (a-1)*cosw0 - sqrtA2Alpha
	f.set(b0, b1, b2, a0, a1, a2)
}

// MakePeakingEQ configures a peaking band at freq with quality q and the
// given gain in dB.
func (f *Biquad) MakePeakingEQ(sampleRate, freq, q, gainDB float64) {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := 1 + alpha*a
	b1 := -2 * cosw0
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosw0
	a2 := 1 - alpha/a
	f.set(b0, b1, b2, a0, a1, a2)
}

// MakeLowPass configures a Butterworth-Q low pass at freq.
func (f *Biquad) MakeLowPass(sampleRate, freq float64) {
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2

	b1 := 1 - cosw0
	b0 := b1 / 2
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha
	f.set(b0, b1, b2, a0, a1, a2)
}

// MakeHighPass configures a Butterworth-Q high pass at freq.
func (f *Biquad) MakeHighPass(sampleRate, freq float64) {
	w0 := 2 * math.Pi * freq / sampleRate
	cosw0 := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2

	b1 := -(1 + cosw0)
	b0 := -b1 / 2
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha
	f.set(b0, b1, b2, a0, a1, a2)
}
