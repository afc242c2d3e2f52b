package dsp

import "math"

// goertzelBands are the frequencies tracked for beat detection.
var goertzelBands = [3]float64{30, 60, 100}

// goertzelBlockMs is how much audio one detection block spans. 100ms
// gives enough resolution at 30Hz while staying responsive to beats.
const goertzelBlockMs = 100

// GoertzelBank estimates narrow-band energy at three sub-bass
// frequencies using the Goertzel recurrence, far cheaper than a full
// transform. Levels are updated once per block and held between blocks.
type GoertzelBank struct {
	coeff [3]float64
	s1    [3]float64
	s2    [3]float64

	blockSize int
	sampleIdx int

	lin [3]float32
}

// Init configures the bank for the given sample rate and clears all
// accumulator and level state.
func (g *GoertzelBank) Init(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	g.blockSize = sampleRate * goertzelBlockMs / 1000
	for i, freq := range goertzelBands {
		k := math.Round(float64(g.blockSize) * freq / float64(sampleRate))
		g.coeff[i] = 2 * math.Cos(2*math.Pi*k/float64(g.blockSize))
	}
	g.sampleIdx = 0
	g.s1 = [3]float64{}
	g.s2 = [3]float64{}
	g.ZeroLevels()
}

// ProcessSample advances the recurrence with one mono sample. At the end
// of each block the band magnitudes are latched and the accumulators
// restart.
func (g *GoertzelBank) ProcessSample(x float32) {
	xf := float64(x)
	for i := range g.coeff {
		s0 := xf + g.coeff[i]*g.s1[i] - g.s2[i]
		g.s2[i] = g.s1[i]
		g.s1[i] = s0
	}

	g.sampleIdx++
	if g.sampleIdx < g.blockSize {
		return
	}

	norm := 2.0 / float64(g.blockSize)
	for i := range g.coeff {
		power := g.s1[i]*g.s1[i] + g.s2[i]*g.s2[i] - g.coeff[i]*g.s1[i]*g.s2[i]
		if power < 0 {
			power = 0
		}
		g.lin[i] = float32(math.Sqrt(power) * norm)
		g.s1[i] = 0
		g.s2[i] = 0
	}
	g.sampleIdx = 0
}

// Lin returns the latched linear magnitude for band 0, 1, or 2
// (30, 60, 100 Hz).
func (g *GoertzelBank) Lin(band int) float32 {
	if band < 0 || band >= len(g.lin) {
		return 0
	}
	return g.lin[band]
}

// DB returns the latched magnitude in dBFS, floored at -60 and capped
// at 0.
func (g *GoertzelBank) DB(band int) float32 {
	lin := g.Lin(band)
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

// ZeroLevels clears the latched band levels without disturbing the
// in-progress block.
func (g *GoertzelBank) ZeroLevels() {
	g.lin = [3]float32{}
}
