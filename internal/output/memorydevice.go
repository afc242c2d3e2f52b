package output

import "sync"

// MemoryDevice is an in-memory Device used by tests and the demo binary.
// It records everything written to it and can be scripted to accept only
// part of a write, imitating a congested peripheral.
type MemoryDevice struct {
	mu sync.Mutex

	written    []int32
	running    bool
	sampleRate int

	// AcceptLimit caps how many samples a single Write accepts.
	// Zero means accept everything.
	AcceptLimit int
	// FailWrites makes Write accept nothing while positive, decrementing
	// per call. Used to exercise the player's retry path.
	FailWrites int

	zeroCalls  int
	clockCalls int
}

func NewMemoryDevice() *MemoryDevice {
	return &MemoryDevice{}
}

func (d *MemoryDevice) Write(samples []int32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailWrites > 0 {
		d.FailWrites--
		return 0, nil
	}

	n := len(samples)
	if d.AcceptLimit > 0 && n > d.AcceptLimit {
		n = d.AcceptLimit
	}
	d.written = append(d.written, samples[:n]...)
	return n, nil
}

func (d *MemoryDevice) ZeroBuffer() {
	d.mu.Lock()
	d.zeroCalls++
	d.mu.Unlock()
}

func (d *MemoryDevice) Start() {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()
}

func (d *MemoryDevice) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

func (d *MemoryDevice) SetClock(sampleRate int) error {
	d.mu.Lock()
	d.sampleRate = sampleRate
	d.clockCalls++
	d.mu.Unlock()
	return nil
}

// Written returns a copy of every sample accepted so far.
func (d *MemoryDevice) Written() []int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int32, len(d.written))
	copy(out, d.written)
	return out
}

// WrittenLen returns how many samples have been accepted so far.
func (d *MemoryDevice) WrittenLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.written)
}

// Running reports whether the device is between Start and Stop.
func (d *MemoryDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// ZeroCalls returns how many times ZeroBuffer has been invoked.
func (d *MemoryDevice) ZeroCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zeroCalls
}

// ClockRate returns the most recently configured sample rate.
func (d *MemoryDevice) ClockRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}
