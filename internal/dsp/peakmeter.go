package dsp

import "math"

// peakMeterCutoffs are the one-pole low-pass cutoffs isolating the
// 30, 60 and 100 Hz display bands.
var peakMeterCutoffs = [3]float64{45, 80, 120}

// peakReleaseMs is the envelope release time. Attack is instant so the
// meter never misses a transient; release is smoothed for display.
const peakReleaseMs = 50.0

// PeakMeter tracks sub-bass levels for the level display. Three cascaded
// one-pole low-pass filters feed fast-attack/slow-release envelopes,
// much more responsive than the Goertzel bank's block latency.
type PeakMeter struct {
	releaseCoef float32

	lpCoef   [3]float32
	lpState  [3]float32
	envelope [3]float32
}

// Init configures the filter and release coefficients for the sample
// rate and zeroes all state.
func (m *PeakMeter) Init(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	fs := float64(sampleRate)

	releaseSamples := peakReleaseMs * 0.001 * fs
	m.releaseCoef = float32(math.Exp(-1.0 / releaseSamples))

	dt := 1.0 / fs
	for i, fc := range peakMeterCutoffs {
		rc := 1.0 / (2 * math.Pi * fc)
		m.lpCoef[i] = float32(dt / (rc + dt))
	}
	m.Zero()
}

// Process advances all three bands with one mono sample.
func (m *PeakMeter) Process(x float32) {
	for i := range m.lpCoef {
		m.lpState[i] += m.lpCoef[i] * (x - m.lpState[i])
		abs := m.lpState[i]
		if abs < 0 {
			abs = -abs
		}
		if abs > m.envelope[i] {
			m.envelope[i] = abs
		} else {
			m.envelope[i] = m.releaseCoef*m.envelope[i] + (1-m.releaseCoef)*abs
		}
	}
}

// Lin returns the current envelope for band 0, 1, or 2.
func (m *PeakMeter) Lin(band int) float32 {
	if band < 0 || band >= len(m.envelope) {
		return 0
	}
	return m.envelope[band]
}

// DB returns the current envelope in dBFS, floored at -60 and capped
// at 0.
func (m *PeakMeter) DB(band int) float32 {
	lin := m.Lin(band)
	if lin < 1e-6 {
		return -60
	}
	db := float32(20 * math.Log10(float64(lin)))
	if db < -60 {
		return -60
	}
	if db > 0 {
		return 0
	}
	return db
}

// Zero clears filter state and envelopes.
func (m *PeakMeter) Zero() {
	m.lpState = [3]float32{}
	m.envelope = [3]float32{}
}
