package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/frame"
)

func TestMonoToStereo(t *testing.T) {
	f := monoToStereo()

	out := f(frame.PCMFrame{0.1, -0.2, 0.3})
	assert.Equal(t, frame.PCMFrame{0.1, 0.1, -0.2, -0.2, 0.3, 0.3}, out)
}

func TestStereoToMono(t *testing.T) {
	f := stereoToMono()

	out := f(frame.PCMFrame{0.2, 0.4, -0.5, -0.5})
	assert.Equal(t, frame.PCMFrame{0.3, -0.5}, out)

	// An odd trailing sample is dropped rather than paired with garbage.
	out = f(frame.PCMFrame{0.2, 0.4, 0.9})
	assert.Equal(t, frame.PCMFrame{0.3}, out)
}

func TestConversionDevicePassThrough(t *testing.T) {
	props := audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2}
	d, err := NewAudioFormatConversionDevice(props, props)
	require.NoError(t, err)

	source := make(chan frame.PCMFrame, 1)
	d.SetStream(source)

	source <- frame.PCMFrame{0.5, -0.5}
	select {
	case got := <-d.GetStream():
		assert.Equal(t, frame.PCMFrame{0.5, -0.5}, got)
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded")
	}

	// Closing the source closes the sink behind it.
	close(source)
	select {
	case _, open := <-d.GetStream():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("sink not closed")
	}
}

func TestConversionDeviceMonoSourceStereoSink(t *testing.T) {
	sourceProps := audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 1}
	sinkProps := audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2}
	d, err := NewAudioFormatConversionDevice(sourceProps, sinkProps)
	require.NoError(t, err)

	assert.Equal(t, sinkProps, d.GetDeviceProperties())
	assert.Equal(t, sourceProps, d.GetSourceDeviceProperties())

	source := make(chan frame.PCMFrame, 1)
	d.SetStream(source)

	source <- frame.PCMFrame{0.25}
	select {
	case got := <-d.GetStream():
		assert.Equal(t, frame.PCMFrame{0.25, 0.25}, got)
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded")
	}
	close(source)
}

func TestConversionDeviceResamples(t *testing.T) {
	sourceProps := audiodevice.DeviceProperties{SampleRate: 48000, NumChannels: 2}
	sinkProps := audiodevice.DeviceProperties{SampleRate: 44100, NumChannels: 2}
	d, err := NewAudioFormatConversionDevice(sourceProps, sinkProps)
	require.NoError(t, err)

	source := make(chan frame.PCMFrame, 1)
	d.SetStream(source)

	// 480 input frames at 48kHz cover 10ms; the resampler produces
	// roughly 441 output frames, modulo its internal latency.
	in := make(frame.PCMFrame, 960)
	source <- in
	select {
	case got := <-d.GetStream():
		assert.LessOrEqual(t, len(got), 960)
		assert.Equal(t, 0, len(got)%2)
	case <-time.After(time.Second):
		t.Fatal("no frame forwarded")
	}
	close(source)
}
