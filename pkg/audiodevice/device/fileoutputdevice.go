package device

import (
	"context"
	"log/slog"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/frame"
)

// FileAudioOutputDevice writes incoming PCM frames to a .WAV file,
// used to record a device stream for offline inspection. The
// resulting file is only valid once the input channel is closed.
type FileAudioOutputDevice struct {
	ctx           context.Context
	ctxCancelFunc context.CancelFunc
	logger        *slog.Logger
	uuid          uuid.UUID
	encoder       *wav.Encoder
	fileHandle    *os.File
	sourceStream  <-chan frame.PCMFrame
}

// NewFileAudioOutputDevice creates a device writing 16-bit PCM to a
// .WAV file at the specified path.
func NewFileAudioOutputDevice(
	audioFilePath string,
	sampleRate int,
	numChannels int,
) (*FileAudioOutputDevice, error) {
	uuid := uuid.New()
	logger := slog.Default().With(
		"file output device uuid", uuid,
	)

	f, err := os.Create(audioFilePath)
	if err != nil {
		logger.Error(
			"could not create audio file",
			"audioFile", audioFilePath,
			"err", err,
		)
		return nil, err
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, numChannels, 1)

	logger.Debug(
		"created audio file",
		"audioFile", audioFilePath,
		"sampleRate", encoder.SampleRate,
		"channels", encoder.NumChans,
	)

	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &FileAudioOutputDevice{
		ctx:           ctx,
		ctxCancelFunc: ctxCancelFunc,
		logger:        logger,
		uuid:          uuid,
		encoder:       encoder,
		fileHandle:    f,
	}, nil
}

// WaitForClose blocks until the device has flushed and closed its file.
func (d *FileAudioOutputDevice) WaitForClose() {
	<-d.ctx.Done()
}

func (d *FileAudioOutputDevice) close() {
	d.encoder.Close()
	d.fileHandle.Sync()
	d.fileHandle.Close()
	d.ctxCancelFunc()
}

// SetStream sets the source channel of this audio device. When the
// channel is closed the file is finalized.
func (d *FileAudioOutputDevice) SetStream(sourceChannel <-chan frame.PCMFrame) {
	d.sourceStream = sourceChannel
	const maxInt16 = float32(math.MaxInt16)
	go func() {
		bufFormat := &goaudio.Format{
			SampleRate:  d.encoder.SampleRate,
			NumChannels: d.encoder.NumChans,
		}
		for pcmFrame := range sourceChannel {
			buf := &goaudio.IntBuffer{
				Format:         bufFormat,
				Data:           make([]int, len(pcmFrame)),
				SourceBitDepth: 16,
			}
			for i, sample := range pcmFrame {
				buf.Data[i] = int(sample * maxInt16)
			}

			if err := d.encoder.Write(buf); err != nil {
				d.logger.Error("error while writing frame to file", "err", err)
				continue
			}
		}
		d.logger.Debug("incoming audio stream closed")
		d.close()
	}()
}

func (d *FileAudioOutputDevice) GetDeviceProperties() audiodevice.DeviceProperties {
	return audiodevice.DeviceProperties{
		SampleRate:  int(d.encoder.SampleRate),
		NumChannels: int(d.encoder.NumChans),
	}
}
