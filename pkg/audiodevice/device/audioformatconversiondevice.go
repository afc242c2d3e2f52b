package device

import (
	"log/slog"
	"sync"

	"github.com/oov/audio/resampler"

	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/frame"
)

const (
	// To avoid reallocating for every source frame, reuse a buffer with
	// "enough size". 48000Hz stereo audio with a latency of 120ms is
	// 11520 samples, so 2**14 = 16384 covers anything we feed through.
	conversionBufferSize int = 16384

	resampleQuality = 10
)

// AudioFormatConversionDevice adapts a source stream's format to what a
// sink expects: mono/stereo fan in or out and sample-rate conversion.
// The demo uses it to bring a file source to the pipeline's output
// rate before the bytes enter the pool, the way the external decoder
// would already have done.
//
// This device is both a sink and a source.
type AudioFormatConversionDevice struct {
	// The naming convention for the channels here reads backwards:
	// the source channel is the *external* source, i.e. the channel
	// data arrives on, and the sink channel is where data leaves.
	// GetStream returns the sink channel; SetStream sets the source.
	sourceChannel    <-chan frame.PCMFrame
	sourceProperties audiodevice.DeviceProperties

	sinkChannel    chan frame.PCMFrame
	sinkProperties audiodevice.DeviceProperties

	// The functions applied, in order, to each arriving frame.
	formatConversionFunctions []audioFormatConversionFunction

	shutdownOnce sync.Once
}

// NewAudioFormatConversionDevice builds a converter from the source
// format (the audio fed into this device) to the sink format (the
// audio leaving it). Conversion starts once SetStream is called.
func NewAudioFormatConversionDevice(
	sourceProperties audiodevice.DeviceProperties,
	sinkProperties audiodevice.DeviceProperties,
) (*AudioFormatConversionDevice, error) {
	formatConversionFunctions := make([]audioFormatConversionFunction, 0)

	if sourceProperties.NumChannels == 1 && sinkProperties.NumChannels == 2 {
		slog.Debug("adding mono to stereo")
		formatConversionFunctions = append(formatConversionFunctions, monoToStereo())
	}
	if sourceProperties.NumChannels == 2 && sinkProperties.NumChannels == 1 {
		slog.Debug("adding stereo to mono")
		formatConversionFunctions = append(formatConversionFunctions, stereoToMono())
	}
	if sourceProperties.SampleRate != sinkProperties.SampleRate {
		slog.Debug("adding resampler")
		formatConversionFunctions = append(formatConversionFunctions, newResampleFunction(sourceProperties, sinkProperties))
	}

	return &AudioFormatConversionDevice{
		sourceProperties:          sourceProperties,
		sinkProperties:            sinkProperties,
		sinkChannel:               make(chan frame.PCMFrame),
		formatConversionFunctions: formatConversionFunctions,
	}, nil
}

// --------------------------------------------------------------------------------
// AudioSourceDevice Interface

// GetStream returns the stream data leaves on, in the sink format.
func (d *AudioFormatConversionDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkChannel
}

func (d *AudioFormatConversionDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkChannel)
	})
}

// GetDeviceProperties returns the properties of the LEAVING data, i.e.
// the data that exits this device. For the entering format call
// GetSourceDeviceProperties.
func (d *AudioFormatConversionDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.sinkProperties
}

// --------------------------------------------------------------------------------
// AudioSinkDevice Interface

// SetStream sets the channel data arrives on and starts the conversion
// goroutine. When the source stream closes, the sink channel closes
// after it.
func (d *AudioFormatConversionDevice) SetStream(sourceChannel <-chan frame.PCMFrame) {
	d.sourceChannel = sourceChannel
	go func() {
		for pcmFrame := range d.sourceChannel {
			for _, f := range d.formatConversionFunctions {
				pcmFrame = f(pcmFrame)
			}
			d.sinkChannel <- pcmFrame
		}
		// This goroutine dies when the source stream is closed.
		d.Close()
	}()
}

func (d *AudioFormatConversionDevice) GetSourceDeviceProperties() audiodevice.DeviceProperties {
	return d.sourceProperties
}

// --------------------------------------------------------------------------------

type audioFormatConversionFunction func(sourceFrame frame.PCMFrame) frame.PCMFrame

func monoToStereo() audioFormatConversionFunction {
	buf := make(frame.PCMFrame, conversionBufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		for i, v := range sourceFrame {
			buf[2*i] = v
			buf[2*i+1] = v
		}
		return buf[:2*len(sourceFrame)]
	}
}

func stereoToMono() audioFormatConversionFunction {
	buf := make(frame.PCMFrame, conversionBufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		if len(sourceFrame)%2 == 1 {
			sourceFrame = sourceFrame[:len(sourceFrame)-1]
		}

		for i := 0; i < len(sourceFrame)/2; i++ {
			buf[i] = (sourceFrame[2*i] + sourceFrame[2*i+1]) / 2
		}
		return buf[:len(sourceFrame)/2]
	}
}

func newResampleFunction(sourceProperties audiodevice.DeviceProperties, sinkProperties audiodevice.DeviceProperties) audioFormatConversionFunction {
	if sinkProperties.NumChannels == 1 {
		r := resampler.New(1, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)
		buf := make(frame.PCMFrame, conversionBufferSize)
		return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
			_, written := r.ProcessFloat32(0, sourceFrame, buf)
			return buf[:written]
		}
	}

	r := resampler.New(2, sourceProperties.SampleRate, sinkProperties.SampleRate, resampleQuality)
	leftSourceBuf := make(frame.PCMFrame, conversionBufferSize/2)
	rightSourceBuf := make(frame.PCMFrame, conversionBufferSize/2)
	leftSinkBuf := make(frame.PCMFrame, conversionBufferSize/2)
	rightSinkBuf := make(frame.PCMFrame, conversionBufferSize/2)
	buf := make(frame.PCMFrame, conversionBufferSize)
	return func(sourceFrame frame.PCMFrame) frame.PCMFrame {
		if len(sourceFrame)%2 == 1 {
			sourceFrame = sourceFrame[:len(sourceFrame)-1]
		}

		// The resampler works on planar channels, the frames are
		// interleaved. Split, process, interleave again.
		for i := 0; i < len(sourceFrame)/2; i++ {
			leftSourceBuf[i] = sourceFrame[2*i]
			rightSourceBuf[i] = sourceFrame[2*i+1]
		}

		_, written := r.ProcessFloat32(0, leftSourceBuf[:len(sourceFrame)/2], leftSinkBuf)
		r.ProcessFloat32(1, rightSourceBuf[:len(sourceFrame)/2], rightSinkBuf)

		for i := 0; i < written; i++ {
			buf[2*i] = leftSinkBuf[i]
			buf[2*i+1] = rightSinkBuf[i]
		}
		return buf[:2*written]
	}
}
