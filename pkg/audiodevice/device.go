package audiodevice

import "github.com/auricle-audio/auricle/pkg/frame"

// DeviceProperties describes the PCM format a device produces or
// expects.
type DeviceProperties struct {
	SampleRate  int
	NumChannels int
}

// AudioSourceDevice is anything that produces PCM audio, e.g. the demo
// file source standing in for the wireless decode callback.
//
// Source devices need only define some way to get data out of the
// device, which returns a channel (stream) of PCMFrames.
type AudioSourceDevice interface {
	// GetStream returns the stream of this audio device. Raw audio
	// data (as PCMFrames) will arrive on the returned channel.
	GetStream() <-chan frame.PCMFrame

	// Close the AudioSourceDevice, including any cleanup of memory and
	// closing of channels. Once closed, this device will transmit no
	// more information.
	Close()

	GetDeviceProperties() DeviceProperties
}

// AudioSinkDevice consumes PCM audio from a channel.
//
// Sink devices close automatically when the source stream closes, so a
// cascade of closures travels down a device pipeline instead of a sink
// panicking an upstream sender.
type AudioSinkDevice interface {
	// SetStream sets the source stream of this audio device. Raw audio
	// data (as PCMFrames) will arrive on the given channel. When that
	// stream is closed the device cleans itself up.
	SetStream(sourceStream <-chan frame.PCMFrame)

	GetDeviceProperties() DeviceProperties
}
