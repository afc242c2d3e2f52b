package player

// fadeInMs is the length of the fade-in envelope applied once at the
// start of a playback session, eliminating the audible pop of a signal
// starting at a non-zero sample.
const fadeInMs = 10

// Resampler converts effect audio from its source rate to the current
// output rate by streaming linear interpolation. State carries across
// chunks: the fractional input position and the last frame of the
// previous chunk keep the interpolation continuous at chunk boundaries.
//
// Retarget re-derives the ratio when the output clock changes mid
// session without resetting the fractional position, so playback
// continues from the same point in the source.
type Resampler struct {
	inputRate  int
	outputRate int
	stereo     bool

	ratio float64
	pos   float64

	lastLeft  int16
	lastRight int16
	hasLast   bool

	fadeInFrames    int
	fadeInRemaining int
}

// NewResampler builds a session resampler. stereo describes the source;
// output is always interleaved stereo int32.
func NewResampler(inputRate, outputRate int, stereo bool) *Resampler {
	r := &Resampler{stereo: stereo}
	r.init(inputRate, outputRate)
	r.fadeInFrames = outputRate * fadeInMs / 1000
	r.fadeInRemaining = r.fadeInFrames
	return r
}

func (r *Resampler) init(inputRate, outputRate int) {
	if outputRate <= 0 {
		outputRate = 44100
	}
	r.inputRate = inputRate
	r.outputRate = outputRate
	r.ratio = float64(inputRate) / float64(outputRate)
}

// Retarget switches the output rate mid-session. The fractional source
// position and last-frame cache are preserved so the stream does not
// skip or repeat audio. The fade-in bookkeeping is rescaled so a fade
// in progress covers the same wall-clock span at the new rate.
func (r *Resampler) Retarget(outputRate int) {
	oldRate := r.outputRate
	r.init(r.inputRate, outputRate)

	if r.fadeInRemaining > 0 {
		r.fadeInRemaining = r.fadeInRemaining * r.outputRate / oldRate
	}
	r.fadeInFrames = r.outputRate * fadeInMs / 1000
	if r.fadeInRemaining > r.fadeInFrames {
		r.fadeInRemaining = r.fadeInFrames
	}
}

// Ratio returns the current input/output rate ratio.
func (r *Resampler) Ratio() float64 { return r.ratio }

// Pos returns the fractional position within the pending input chunk.
func (r *Resampler) Pos() float64 { return r.pos }

// OutputRate returns the current target rate.
func (r *Resampler) OutputRate() int { return r.outputRate }

// Process resamples in (interleaved source frames, int16) into out
// (interleaved stereo int32, left-aligned by 16 bits) and returns the
// number of stereo frames produced. Input that cannot be consumed yet
// because the interpolation needs its successor is carried to the next
// call through the last-frame cache and fractional position.
func (r *Resampler) Process(in []int16, inFrames int, out []int32, outCapacity int) int {
	if inFrames <= 0 {
		return 0
	}

	if !r.hasLast {
		if r.stereo {
			r.lastLeft = in[0]
			r.lastRight = in[1]
		} else {
			r.lastLeft = in[0]
			r.lastRight = in[0]
		}
		r.hasLast = true
	}

	outCount := 0
	for outCount < outCapacity {
		idx := int(r.pos)
		next := idx + 1
		if next >= inFrames {
			break // need more input
		}
		frac := float32(r.pos - float64(idx))

		var l0, r0, l1, r1 int16
		if r.stereo {
			if idx == 0 {
				l0, r0 = r.lastLeft, r.lastRight
			} else {
				l0, r0 = in[idx*2], in[idx*2+1]
			}
			l1, r1 = in[next*2], in[next*2+1]
		} else {
			if idx == 0 {
				l0, r0 = r.lastLeft, r.lastRight
			} else {
				l0, r0 = in[idx], in[idx]
			}
			l1, r1 = in[next], in[next]
		}

		sampleL := (1-frac)*float32(l0) + frac*float32(l1)
		sampleR := (1-frac)*float32(r0) + frac*float32(r1)

		if r.fadeInRemaining > 0 {
			gain := 1 - float32(r.fadeInRemaining)/float32(r.fadeInFrames)
			sampleL *= gain
			sampleR *= gain
			r.fadeInRemaining--
		}

		// Expand 16-bit to left-aligned 32-bit for the output peripheral.
		out[outCount*2] = int32(sampleL * 65536)
		out[outCount*2+1] = int32(sampleR * 65536)
		outCount++
		r.pos += r.ratio
	}

	// Carry the fractional remainder and cache the chunk's final frame
	// for interpolation continuity into the next chunk.
	consumed := int(r.pos)
	r.pos -= float64(consumed)

	if r.stereo {
		r.lastLeft = in[(inFrames-1)*2]
		r.lastRight = in[(inFrames-1)*2+1]
	} else {
		r.lastLeft = in[inFrames-1]
		r.lastRight = in[inFrames-1]
	}
	return outCount
}
