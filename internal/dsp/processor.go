package dsp

import (
	"log/slog"
	"math"
	"sync"
)

const (
	// DefaultSampleRate is assumed until the first codec notification.
	DefaultSampleRate = 44100

	// MaxVolume is the top of the control-plane volume range.
	MaxVolume = 127

	eqBassFreq   = 150.0
	eqMidFreq    = 1000.0
	eqMidQ       = 1.0
	eqTrebleFreq = 6000.0

	// External EQ values arrive as +/-12 dB; bass is scaled harder
	// because it clips first.
	eqBassScale   = 0.5
	eqMidScale    = 0.7
	eqTrebleScale = 0.7

	bassCompFreq  = 100.0
	bassCompMaxDB = 5.0

	bassShelfFreq   = 150.0
	bassShelfGainDB = 2.0
	bassGainBoost   = 1.15

	crossoverFreq = 1000.0
	// Each ear only receives part of the spectrum in split mode, so the
	// surviving band is lifted to keep perceived loudness.
	crossoverGainComp = 1.41

	// Control byte flag bits, shared with the control protocol.
	ctrlBassBoost   = 0x01
	ctrlChannelFlip = 0x02
	ctrlBypass      = 0x04
)

// Processor is the stateful per-sample signal chain. It is owned by the
// drain goroutine; the control-plane setters take an internal mutex so
// remote commands may arrive from any goroutine.
type Processor struct {
	logger *slog.Logger

	mu sync.Mutex

	sampleRate int

	eqBassL, eqBassR     Biquad
	eqMidL, eqMidR       Biquad
	eqTrebleL, eqTrebleR Biquad

	bassShelfL, bassShelfR Biquad
	bassCompL, bassCompR   Biquad

	crossoverLP Biquad
	crossoverHP Biquad

	crossfeed Crossfeed
	goertzel  GoertzelBank
	peakMeter PeakMeter

	eqBassDB   float32
	eqMidDB    float32
	eqTrebleDB float32
	eqActive   bool

	bassBoost   bool
	channelFlip bool
	bypass      bool
	analysis    bool
	sound3D     bool

	volume         uint8
	bassCompDB     float32
	bassCompActive bool
}

// NewProcessor builds a processor at the given sample rate with neutral
// EQ, analysis enabled and every optional stage off.
func NewProcessor(sampleRate int) *Processor {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	p := &Processor{
		logger:     slog.Default().With("component", "dsp"),
		sampleRate: sampleRate,
		analysis:   true,
		volume:     MaxVolume,
	}
	p.updateFilters()
	p.updateBassCompensation()
	p.goertzel.Init(sampleRate)
	p.peakMeter.Init(sampleRate)
	p.crossfeed.Init(sampleRate)
	return p
}

// SetSampleRate recomputes every coefficient set for the new rate and
// unconditionally resets every delay line. Skipping the reset leaves
// state computed for the old rate in the filters, which is audible as a
// transient after every codec switch.
func (p *Processor) SetSampleRate(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sampleRate == p.sampleRate {
		return
	}
	p.sampleRate = sampleRate
	p.updateFilters()
	p.updateBassCompensation()
	p.crossfeed.Init(sampleRate)
	p.goertzel.Init(sampleRate)
	p.peakMeter.Init(sampleRate)
	p.resetAllFilters()
	p.logger.Info("dsp reconfigured", "sampleRate", sampleRate)
}

// SampleRate returns the currently configured rate.
func (p *Processor) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRate
}

// SetEQ applies three-band gains from the control plane (+/-12 dB range).
func (p *Processor) SetEQ(bassDB, midDB, trebleDB int8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eqBassDB = float32(bassDB) * eqBassScale
	p.eqMidDB = float32(midDB) * eqMidScale
	p.eqTrebleDB = float32(trebleDB) * eqTrebleScale
	p.updateFilters()
}

// EQ returns the scaled gains currently in effect.
func (p *Processor) EQ() (bassDB, midDB, trebleDB float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eqBassDB, p.eqMidDB, p.eqTrebleDB
}

// SetVolume stores the control-plane volume (0-127) and rebuilds the
// bass compensation shelf that follows it.
func (p *Processor) SetVolume(volume uint8) {
	if volume > MaxVolume {
		volume = MaxVolume
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.updateBassCompensation()
}

// Volume returns the last control-plane volume.
func (p *Processor) Volume() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// BassCompensationDB returns the gain of the loudness shelf currently
// applied.
func (p *Processor) BassCompensationDB() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bassCompDB
}

// VisualBoost returns a linear gain factor for the out-of-scope
// visualization engine: at low volumes the analysis levels shrink, so
// the display boosts by the inverse of the volume fraction, capped at
// 100x.
func (p *Processor) VisualBoost() float32 {
	p.mu.Lock()
	volumePct := float32(p.volume) / MaxVolume
	p.mu.Unlock()
	if volumePct < 0.01 {
		volumePct = 0.01
	}
	boost := 1 / volumePct
	if boost > 100 {
		boost = 100
	}
	return boost
}

func (p *Processor) SetBassBoost(enable bool)   { p.mu.Lock(); p.bassBoost = enable; p.mu.Unlock() }
func (p *Processor) SetChannelFlip(enable bool) { p.mu.Lock(); p.channelFlip = enable; p.mu.Unlock() }
func (p *Processor) SetBypass(enable bool)      { p.mu.Lock(); p.bypass = enable; p.mu.Unlock() }
func (p *Processor) SetAnalysis(enable bool)    { p.mu.Lock(); p.analysis = enable; p.mu.Unlock() }
func (p *Processor) Set3DSound(enable bool)     { p.mu.Lock(); p.sound3D = enable; p.mu.Unlock() }

func (p *Processor) BassBoost() bool   { p.mu.Lock(); defer p.mu.Unlock(); return p.bassBoost }
func (p *Processor) ChannelFlip() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.channelFlip }
func (p *Processor) Bypass() bool      { p.mu.Lock(); defer p.mu.Unlock(); return p.bypass }
func (p *Processor) Analysis() bool    { p.mu.Lock(); defer p.mu.Unlock(); return p.analysis }
func (p *Processor) Sound3D() bool     { p.mu.Lock(); defer p.mu.Unlock(); return p.sound3D }

// ControlByte packs the boolean flags for the control protocol.
func (p *Processor) ControlByte() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var v uint8
	if p.bassBoost {
		v |= ctrlBassBoost
	}
	if p.channelFlip {
		v |= ctrlChannelFlip
	}
	if p.bypass {
		v |= ctrlBypass
	}
	return v
}

// ApplyControlByte unpacks flags received from the control protocol.
func (p *Processor) ApplyControlByte(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bassBoost = v&ctrlBassBoost != 0
	p.channelFlip = v&ctrlChannelFlip != 0
	p.bypass = v&ctrlBypass != 0
}

// GoertzelLin and GoertzelDB expose the beat-detection band levels.
func (p *Processor) GoertzelLin(band int) float32 { return p.goertzel.Lin(band) }
func (p *Processor) GoertzelDB(band int) float32  { return p.goertzel.DB(band) }

// PeakLin and PeakDB expose the fast level-display meters.
func (p *Processor) PeakLin(band int) float32 { return p.peakMeter.Lin(band) }
func (p *Processor) PeakDB(band int) float32  { return p.peakMeter.DB(band) }

// ZeroLevels clears the analysis outputs, used when the stream stops.
func (p *Processor) ZeroLevels() {
	p.goertzel.ZeroLevels()
	p.peakMeter.Zero()
}

// ProcessStereo runs one stereo sample through the full chain in place.
// Called from the drain goroutine only.
func (p *Processor) ProcessStereo(l, r *float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Analysis taps the mono mix before any processing so the display
	// reflects the source, not the effects.
	mono := (*l + *r) * 0.5

	if p.eqActive {
		*l = p.eqBassL.Process(*l)
		*r = p.eqBassR.Process(*r)
		*l = p.eqMidL.Process(*l)
		*r = p.eqMidR.Process(*r)
		*l = p.eqTrebleL.Process(*l)
		*r = p.eqTrebleR.Process(*r)
	}

	if p.bassCompActive {
		*l = p.bassCompL.Process(*l)
		*r = p.bassCompR.Process(*r)
	}

	if p.sound3D {
		p.crossfeed.Process(l, r)
	}

	if p.analysis {
		p.goertzel.ProcessSample(mono)
		p.peakMeter.Process(mono)
	}

	if !p.bypass {
		// Split-ear crossover: low band from L, high band from R, each
		// lifted to offset the per-ear spectral loss.
		lpOut := p.crossoverLP.Process(*l)
		hpOut := p.crossoverHP.Process(*r)

		if p.bassBoost {
			lpOut = p.bassShelfL.Process(lpOut) * bassGainBoost
		}

		lpOut *= crossoverGainComp
		hpOut *= crossoverGainComp

		if !p.channelFlip {
			*l = lpOut
			*r = hpOut
		} else {
			*l = hpOut
			*r = lpOut
		}
	} else if p.bassBoost {
		*l = p.bassShelfL.Process(*l) * bassGainBoost
		*r = p.bassShelfR.Process(*r) * bassGainBoost
	}

	// Final limiter: hard ceiling at unity, the last line of defense
	// before the fixed-point conversion.
	*l = clampUnit(*l)
	*r = clampUnit(*r)
}

func clampUnit(x float32) float32 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// updateFilters rebuilds every coefficient set for the current rate and
// EQ gains. Callers hold p.mu.
func (p *Processor) updateFilters() {
	fs := float64(p.sampleRate)

	p.eqBassL.MakeLowShelf(fs, eqBassFreq, float64(p.eqBassDB))
	p.eqBassR.MakeLowShelf(fs, eqBassFreq, float64(p.eqBassDB))
	p.eqMidL.MakePeakingEQ(fs, eqMidFreq, eqMidQ, float64(p.eqMidDB))
	p.eqMidR.MakePeakingEQ(fs, eqMidFreq, eqMidQ, float64(p.eqMidDB))
	p.eqTrebleL.MakeHighShelf(fs, eqTrebleFreq, float64(p.eqTrebleDB))
	p.eqTrebleR.MakeHighShelf(fs, eqTrebleFreq, float64(p.eqTrebleDB))

	p.bassShelfL.MakeLowShelf(fs, bassShelfFreq, bassShelfGainDB)
	p.bassShelfR.MakeLowShelf(fs, bassShelfFreq, bassShelfGainDB)

	p.crossoverLP.MakeLowPass(fs, crossoverFreq)
	p.crossoverHP.MakeHighPass(fs, crossoverFreq)

	p.eqActive = abs32(p.eqBassDB) >= 0.1 ||
		abs32(p.eqMidDB) >= 0.1 ||
		abs32(p.eqTrebleDB) >= 0.1
}

// updateBassCompensation rebuilds the loudness shelf from the current
// volume: 0 dB at full volume, bassCompMaxDB at mute, following
// boost = max * (1 - volume/MaxVolume)^2. Callers hold p.mu.
func (p *Processor) updateBassCompensation() {
	factor := 1 - float64(p.volume)/MaxVolume
	p.bassCompDB = float32(bassCompMaxDB * factor * factor)
	p.bassCompActive = p.bassCompDB > 0.1

	fs := float64(p.sampleRate)
	p.bassCompL.MakeLowShelf(fs, bassCompFreq, float64(p.bassCompDB))
	p.bassCompR.MakeLowShelf(fs, bassCompFreq, float64(p.bassCompDB))
}

// resetAllFilters clears every delay line. Callers hold p.mu.
func (p *Processor) resetAllFilters() {
	p.eqBassL.Reset()
	p.eqBassR.Reset()
	p.eqMidL.Reset()
	p.eqMidR.Reset()
	p.eqTrebleL.Reset()
	p.eqTrebleR.Reset()
	p.bassShelfL.Reset()
	p.bassShelfR.Reset()
	p.bassCompL.Reset()
	p.bassCompR.Reset()
	p.crossoverLP.Reset()
	p.crossoverHP.Reset()
	p.crossfeed.Reset()
	p.peakMeter.Zero()
}

func abs32(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
