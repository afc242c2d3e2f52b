// Package output wraps the hardware audio peripheral behind a single
// mutex so writes never interleave with live clock reconfiguration.
package output

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultSampleRate is used whenever a caller passes a zero rate.
const DefaultSampleRate = 44100

var ErrNilDevice = errors.New("output device must not be nil")

// Device is the capability set the hardware peripheral must provide.
// Write must be bounded-time: a driver that cannot accept data returns a
// short count rather than blocking indefinitely.
type Device interface {
	// Write pushes interleaved stereo int32 samples to the peripheral
	// and returns how many samples were accepted.
	Write(samples []int32) (int, error)
	// ZeroBuffer forces the peripheral's outgoing buffer to silence.
	ZeroBuffer()
	Start()
	Stop()
	// SetClock reconfigures the peripheral output clock.
	SetClock(sampleRate int) error
}

// Output serializes access to a Device and owns live sample-rate
// reconfiguration. All mutating operations share one mutex; Write observes
// an atomic reconfiguring flag so it can bail out instantly instead of
// queueing behind a clock change.
type Output struct {
	logger *slog.Logger
	uuid   uuid.UUID

	mu     sync.Mutex
	device Device

	sampleRate    atomic.Int64
	reconfiguring atomic.Bool
	started       bool

	shortWrites atomic.Uint64
	writes      atomic.Uint64

	rateSubscriber func(sampleRate int)
}

// New wraps a Device at the given initial sample rate. The device clock is
// configured immediately; failure here is fatal for the pipeline.
func New(device Device, sampleRate int) (*Output, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	id := uuid.New()
	logger := slog.Default().With("audio output uuid", id)

	if err := device.SetClock(sampleRate); err != nil {
		logger.Error("could not configure output clock", "sampleRate", sampleRate, "err", err)
		return nil, err
	}

	o := &Output{
		logger: logger,
		uuid:   id,
		device: device,
	}
	o.sampleRate.Store(int64(sampleRate))

	logger.Debug("initialized audio output", "sampleRate", sampleRate)
	return o, nil
}

// OnRateChange registers the subscriber notified after every successful
// clock change. Used to keep the effect player's resampler in sync.
// Must be set before concurrent use.
func (o *Output) OnRateChange(fn func(sampleRate int)) {
	o.rateSubscriber = fn
}

// SampleRate returns the currently configured output rate.
func (o *Output) SampleRate() int {
	return int(o.sampleRate.Load())
}

// Write pushes samples to the device and returns the number of samples
// written. Returns 0 while a clock reconfiguration is in flight. Writes
// shorter than requested are counted but not treated as errors.
func (o *Output) Write(samples []int32) int {
	if o.reconfiguring.Load() {
		return 0
	}

	o.mu.Lock()
	written, err := o.device.Write(samples)
	o.mu.Unlock()

	o.writes.Add(1)
	if err != nil {
		o.shortWrites.Add(1)
		return 0
	}
	if written < len(samples) {
		o.shortWrites.Add(1)
	}
	return written
}

// ZeroSilence forces the peripheral buffer to silence for an instant,
// pop-free cutoff.
func (o *Output) ZeroSilence() {
	o.mu.Lock()
	o.device.ZeroBuffer()
	o.mu.Unlock()
}

// Start enables the peripheral output.
func (o *Output) Start() {
	o.mu.Lock()
	o.device.Start()
	o.started = true
	o.mu.Unlock()
}

// Stop halts the peripheral output.
func (o *Output) Stop() {
	o.mu.Lock()
	o.device.Stop()
	o.started = false
	o.mu.Unlock()
}

// UpdateClock reconfigures the output clock under the lock: stop, silence,
// set clock, restart, then notify the rate subscriber. A zero rate falls
// back to the default; an unchanged rate is a no-op.
func (o *Output) UpdateClock(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if int(o.sampleRate.Load()) == sampleRate {
		return
	}

	o.mu.Lock()
	o.reconfiguring.Store(true)

	o.device.Stop()
	o.device.ZeroBuffer()

	var subscriber func(int)
	if err := o.device.SetClock(sampleRate); err != nil {
		o.logger.Error("output clock change failed", "sampleRate", sampleRate, "err", err)
	} else {
		o.sampleRate.Store(int64(sampleRate))
		subscriber = o.rateSubscriber
		o.logger.Info("output clock updated", "sampleRate", sampleRate)
	}

	o.device.Start()
	o.reconfiguring.Store(false)
	o.mu.Unlock()

	if subscriber != nil {
		subscriber(sampleRate)
	}
}

// ResetToDefault restores the default clock and silences the buffer.
// Called on source disconnect.
func (o *Output) ResetToDefault() {
	o.UpdateClock(DefaultSampleRate)
	o.ZeroSilence()
}

// ShortWriteCount returns how many writes delivered fewer samples than
// requested since construction.
func (o *Output) ShortWriteCount() uint64 { return o.shortWrites.Load() }

// WriteCount returns the total number of write calls since construction.
func (o *Output) WriteCount() uint64 { return o.writes.Load() }

// Reconfiguring reports whether a clock change is currently in flight.
func (o *Output) Reconfiguring() bool { return o.reconfiguring.Load() }
