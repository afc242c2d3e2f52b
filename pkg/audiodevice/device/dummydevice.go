package device

import (
	"sync"

	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/frame"
)

// DummyAudioSourceDevice is an AudioSourceDevice that never produces a
// frame. It terminates a device chain that needs a source but no real
// audio, such as a conversion device under test.
type DummyAudioSourceDevice struct {
	properties   audiodevice.DeviceProperties
	shutdownOnce sync.Once
	sinkStream   chan frame.PCMFrame
}

func NewDummyAudioSourceDevice(properties audiodevice.DeviceProperties) *DummyAudioSourceDevice {
	return &DummyAudioSourceDevice{
		properties: properties,
		sinkStream: make(chan frame.PCMFrame),
	}
}

func (d *DummyAudioSourceDevice) Close() {
	d.shutdownOnce.Do(func() {
		close(d.sinkStream)
	})
}

func (d *DummyAudioSourceDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *DummyAudioSourceDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}

// DummyAudioSinkDevice consumes and discards every frame on its
// stream. The demo attaches it as the stream tap when no recording
// file is requested, so the tap never backs up the enqueue loop.
type DummyAudioSinkDevice struct {
	properties   audiodevice.DeviceProperties
	sourceStream <-chan frame.PCMFrame
}

func NewDummyAudioSinkDevice(properties audiodevice.DeviceProperties) *DummyAudioSinkDevice {
	return &DummyAudioSinkDevice{
		properties: properties,
	}
}

func (d *DummyAudioSinkDevice) SetStream(sourceStream <-chan frame.PCMFrame) {
	d.sourceStream = sourceStream
	go func() {
		for range sourceStream {
		}
	}()
}

func (d DummyAudioSinkDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return d.properties
}
