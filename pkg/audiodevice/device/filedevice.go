package device

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/frame"
)

// FileAudioInputDevice reads a .WAV file and emits its PCM as a paced
// stream of frames, one every frameDuration. The demo binary uses it to
// stand in for the wireless decode callback, which delivers audio in
// bursts of roughly codec-frame duration.
type FileAudioInputDevice struct {
	logger *slog.Logger
	uuid   uuid.UUID

	shutdownOnce sync.Once

	decoder         *wav.Decoder
	fileHandle      *os.File
	frameDuration   time.Duration
	samplesPerFrame int
	sinkStream      chan frame.PCMFrame
}

// NewFileAudioInputDevice opens a .WAV file on audioFilePath. The
// sample rate and channel count come from the file; the duration
// between emitted frames is set by frameDuration (20ms is typical for
// imitating a wireless codec).
func NewFileAudioInputDevice(
	audioFilePath string,
	frameDuration time.Duration,
) (*FileAudioInputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file input device uuid", uuid,
	)

	f, err := os.Open(audioFilePath)
	if err != nil {
		logger.Error(
			"could not open audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	decoder := wav.NewDecoder(f)

	if !decoder.IsValidFile() {
		logger.Error(
			"could not decode audio file",
			"audioFile", audioFilePath,
			"err", decoder.Err(),
		)
		f.Close()
		return nil, errors.New("error while decoding audio file")
	}

	samplesPerFrame := int(float64(decoder.NumChans) * float64(decoder.SampleRate) *
		float64(frameDuration) / float64(time.Second))
	if samplesPerFrame <= 0 {
		logger.Error(
			"non-positive samples per frame during opening of file audio input",
			"audioFile", audioFilePath,
			"sampleRate", decoder.SampleRate,
			"channels", decoder.NumChans,
			"samplesPerFrame", samplesPerFrame,
		)
		f.Close()
		return nil, errors.New("non-positive samples per frame")
	}

	logger.Debug(
		"loaded audio file",
		"audioFile", audioFilePath,
		"sampleRate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"samplesPerFrame", samplesPerFrame,
	)

	return &FileAudioInputDevice{
		logger:          logger,
		uuid:            uuid,
		decoder:         decoder,
		fileHandle:      f,
		frameDuration:   frameDuration,
		samplesPerFrame: samplesPerFrame,
		sinkStream:      make(chan frame.PCMFrame),
	}, nil
}

// Play streams the audio file along the device's channel at real-time
// pace. If the context is canceled, playback stops.
func (d *FileAudioInputDevice) Play(ctx context.Context) {
	d.logger.Debug("playing audio")
	const maxInt16 = float32(math.MaxInt16)
	go func() {
		buf, err := d.decoder.FullPCMBuffer()
		if err != nil {
			d.logger.Error(
				"could not get full PCM buffer from audio file",
				"err", err,
			)
			return
		}
		frameBuf := make(frame.PCMFrame, d.samplesPerFrame)

		ticker := time.NewTicker(d.frameDuration)
		defer ticker.Stop()
		for frameStart := 0; frameStart < len(buf.Data); frameStart += d.samplesPerFrame {
			frameEnd := min(frameStart+d.samplesPerFrame, len(buf.Data))
			for i := 0; i < frameEnd-frameStart; i++ {
				frameBuf[i] = float32(buf.Data[frameStart+i]) / maxInt16
			}

			select {
			case <-ticker.C:
				d.sinkStream <- frameBuf[:frameEnd-frameStart]
			case <-ctx.Done():
				return
			}
		}
		d.logger.Debug("finished playing")
	}()
}

func (d *FileAudioInputDevice) Close() {
	d.logger.Debug("shutdown called")
	d.shutdownOnce.Do(func() {
		close(d.sinkStream)
		d.fileHandle.Close()
	})
}

func (d *FileAudioInputDevice) GetStream() <-chan frame.PCMFrame {
	return d.sinkStream
}

func (d *FileAudioInputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  int(d.decoder.SampleRate),
		NumChannels: int(d.decoder.NumChans),
	}
}
