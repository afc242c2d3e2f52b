package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/auricle-audio/auricle/cmd/config"
	"github.com/auricle-audio/auricle/internal/bufpool"
	"github.com/auricle-audio/auricle/internal/dsp"
	"github.com/auricle-audio/auricle/internal/output"
	"github.com/auricle-audio/auricle/internal/overlay"
	"github.com/auricle-audio/auricle/internal/pipeline"
	"github.com/auricle-audio/auricle/internal/player"
	"github.com/auricle-audio/auricle/internal/utils"
	"github.com/auricle-audio/auricle/pkg/audiodevice"
	"github.com/auricle-audio/auricle/pkg/audiodevice/device"
	"github.com/auricle-audio/auricle/pkg/frame"
)

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	wavFile := flag.String("wavfile", "", "Stream this wav file through the pipeline instead of the generated test tone.")
	recordFile := flag.String("record", "", "Record the audio fed to the pipeline to this wav file (only with -wavfile).")
	effectFile := flag.String("effect", "", "Optional wav file (relative to soundsdir) played over the stream after two seconds.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------

	sampleRate := viper.GetInt("samplerate")

	hwDevice := output.NewMemoryDevice()
	out, err := output.New(hwDevice, sampleRate)
	if err != nil {
		slog.Error("error creating output", "err", err)
		panic(err)
	}

	processor := dsp.NewProcessor(sampleRate)
	processor.SetVolume(uint8(viper.GetInt("volume")))

	eq := viper.GetIntSlice("eq")
	if len(eq) == 3 {
		processor.SetEQ(int8(eq[0]), int8(eq[1]), int8(eq[2]))
	}

	mixer := overlay.NewMixer()

	pool, err := bufpool.NewPool(
		viper.GetInt("poolbuffers"),
		viper.GetInt("poolbuffersize"),
	)
	if err != nil {
		slog.Error("error creating buffer pool", "err", err)
		panic(err)
	}

	effects := player.New(
		player.DirOpener(viper.GetString("soundsdir")),
		out,
		mixer,
	)

	pipe, err := pipeline.New(pipeline.Config{
		Pool:      pool,
		DSP:       processor,
		Output:    out,
		Mixer:     mixer,
		Skip:      effects,
		OutFrames: viper.GetInt("outframes"),
	})
	if err != nil {
		slog.Error("error creating pipeline", "err", err)
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pipe.Run(ctx)

	// --------------------------------------------------------------------------------

	var source *device.FileAudioInputDevice
	if *wavFile != "" {
		source, err = streamWavFile(ctx, pipe, sampleRate, *wavFile, *recordFile)
		if err != nil {
			slog.Error("error streaming wav file", "file", *wavFile, "err", err)
			panic(err)
		}
	} else {
		go generateTone(ctx, pipe, processor, sampleRate)
	}

	// --------------------------------------------------------------------------------

	if *effectFile != "" {
		go func() {
			time.Sleep(2 * time.Second)
			slog.Info("playing effect over stream", "file", *effectFile)
			if err := effects.Play(*effectFile, player.ModeOverlay); err != nil {
				slog.Error("error playing effect", "err", err)
			}
		}()
	}

	// --------------------------------------------------------------------------------

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	cancel()
	if source != nil {
		// Let an in-flight paced frame drain before the stream closes
		// underneath its sender.
		time.Sleep(100 * time.Millisecond)
		source.Close()
	}
	effects.Stop()
	pipe.ClearWithSilence()
}

// streamWavFile wires the device chain standing in for the wireless
// decoder: the file source emits paced frames, the conversion device
// brings them to the pipeline's output format, and the drain below
// packs each frame into 16-bit bytes for Enqueue. The same frames also
// feed a recording sink when requested, or a discard sink otherwise.
func streamWavFile(ctx context.Context, pipe *pipeline.Pipeline, sampleRate int, path, recordPath string) (*device.FileAudioInputDevice, error) {
	source, err := device.NewFileAudioInputDevice(path, 20*time.Millisecond)
	if err != nil {
		return nil, err
	}

	conv, err := device.NewAudioFormatConversionDevice(
		source.GetDeviceProperties(),
		audiodevice.DeviceProperties{SampleRate: sampleRate, NumChannels: 2},
	)
	if err != nil {
		return nil, err
	}
	conv.SetStream(source.GetStream())

	var sink audiodevice.AudioSinkDevice
	if recordPath != "" {
		sink, err = device.NewFileAudioOutputDevice(recordPath, sampleRate, 2)
		if err != nil {
			return nil, err
		}
		slog.Info("recording pipeline input", "file", recordPath)
	} else {
		sink = device.NewDummyAudioSinkDevice(conv.GetDeviceProperties())
	}

	tap := make(chan frame.PCMFrame)
	sink.SetStream(tap)

	go func() {
		defer close(tap)
		for pcmFrame := range conv.GetStream() {
			data := make([]byte, 2*len(pcmFrame))
			for i, sample := range pcmFrame {
				v := int32(sample * 32767)
				if v > 32767 {
					v = 32767
				} else if v < -32768 {
					v = -32768
				}
				binary.LittleEndian.PutUint16(data[2*i:], uint16(int16(v)))
			}
			pipe.Enqueue(data, 16, 2)
			tap <- pcmFrame
		}
	}()

	source.Play(ctx)
	slog.Info("streaming wav file", "file", path)
	return source, nil
}

// generateTone pushes a modulated sine through the full processing
// chain when no wav file is given, so the demo exercises the pipeline
// without any audio assets.
func generateTone(ctx context.Context, pipe *pipeline.Pipeline, processor *dsp.Processor, sampleRate int) {
	const framesPerBuffer = 512
	const baseFreq = 440.0

	var phase float64
	var frameCount int64
	buf := make([]byte, framesPerBuffer*4)

	period := time.Duration(framesPerBuffer) * time.Second / time.Duration(sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	slog.Info("starting test tone generation", "sampleRate", sampleRate)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for i := 0; i < framesPerBuffer; i++ {
			// Sine with slow frequency modulation so the tone is not
			// entirely sterile.
			freqModulation := math.Sin(float64(frameCount)*0.01) * 50
			currentFreq := baseFreq + freqModulation

			sample := math.Sin(phase)
			amplitude := 0.3 + 0.2*math.Sin(float64(frameCount)*0.005)
			sample *= amplitude

			v := int16(sample * 16383)
			binary.LittleEndian.PutUint16(buf[4*i:], uint16(v))
			binary.LittleEndian.PutUint16(buf[4*i+2:], uint16(v))

			phase += 2 * math.Pi * currentFreq / float64(sampleRate)
			if phase >= 2*math.Pi {
				phase -= 2 * math.Pi
			}
			frameCount++
		}

		pipe.Enqueue(buf, 16, 2)

		if frameCount%int64(10*sampleRate) < framesPerBuffer {
			slog.Info("pipeline stats",
				"writes", pipe.WriteCount(),
				"drops", pipe.DropCount(),
				"fillPercent", pipe.FillPercent(),
				"bassDB", processor.GoertzelDB(0),
			)
		}
	}
}
