package bufpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRejectsBadGeometry(t *testing.T) {
	_, err := NewPool(0, 1024)
	assert.ErrorIs(t, err, ErrBadCount)

	_, err = NewPool(16, 0)
	assert.ErrorIs(t, err, ErrBadSize)

	_, err = NewPool(-1, -1)
	assert.ErrorIs(t, err, ErrBadCount)
}

func TestNewPoolStartsAllFree(t *testing.T) {
	p, err := NewPool(16, 1024)
	require.NoError(t, err)

	assert.Equal(t, 16, p.Capacity())
	assert.Equal(t, 1024, p.BufferSize())
	assert.Equal(t, 16, p.FreeLen())
	assert.Equal(t, 0, p.ReadyLen())
	assert.Equal(t, 0, p.FillPercent())
}

func TestAcquireSubmitTakeReleaseCycle(t *testing.T) {
	p, err := NewPool(4, 256)
	require.NoError(t, err)

	b, ok := p.AcquireFree()
	require.True(t, ok)
	require.NotNil(t, b)
	assert.Equal(t, 256, b.Cap())
	assert.Equal(t, 3, p.FreeLen())

	copy(b.Data, []byte{1, 2, 3, 4})
	b.Len = 4
	b.Bits = 16
	b.Channels = 2

	require.True(t, p.SubmitReady(b))
	assert.Equal(t, 1, p.ReadyLen())

	got, ok := p.TakeReady(time.Millisecond)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Data[:got.Len])

	p.ReleaseFree(got)
	assert.Equal(t, 4, p.FreeLen())
	assert.Equal(t, 0, got.Len, "release must reset the fill length")
}

func TestAcquireFreeExhaustion(t *testing.T) {
	p, err := NewPool(2, 64)
	require.NoError(t, err)

	b1, ok := p.AcquireFree()
	require.True(t, ok)
	b2, ok := p.AcquireFree()
	require.True(t, ok)

	// Pool exhausted, acquisition reports a drop condition without blocking.
	_, ok = p.AcquireFree()
	assert.False(t, ok)

	p.ReleaseFree(b1)
	p.ReleaseFree(b2)

	_, ok = p.AcquireFree()
	assert.True(t, ok)
}

func TestTakeReadyTimesOutEmpty(t *testing.T) {
	p, err := NewPool(2, 64)
	require.NoError(t, err)

	start := time.Now()
	_, ok := p.TakeReady(5 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestTakeReadyFastPathSkipsTimer(t *testing.T) {
	p, err := NewPool(2, 64)
	require.NoError(t, err)

	b, _ := p.AcquireFree()
	require.True(t, p.SubmitReady(b))

	// A zero timeout still succeeds when data is already queued.
	got, ok := p.TakeReady(0)
	assert.True(t, ok)
	assert.Same(t, b, got)
}

func TestDrainReadyReturnsAllToFree(t *testing.T) {
	p, err := NewPool(8, 64)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		b, ok := p.AcquireFree()
		require.True(t, ok)
		b.Len = 10
		require.True(t, p.SubmitReady(b))
	}
	assert.Equal(t, 5, p.ReadyLen())
	assert.Equal(t, 3, p.FreeLen())

	n := p.DrainReady()
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, p.ReadyLen())
	assert.Equal(t, 8, p.FreeLen())

	assert.Equal(t, 0, p.DrainReady())
}

// Whatever sequence of operations runs, every buffer is in exactly one of
// the free queue, the ready queue, or a caller's hands.
func TestBufferConservation(t *testing.T) {
	const count = 16
	p, err := NewPool(count, 128)
	require.NoError(t, err)

	inHand := make([]*Buffer, 0, count)
	for i := 0; i < 7; i++ {
		b, ok := p.AcquireFree()
		require.True(t, ok)
		inHand = append(inHand, b)
	}
	assert.Equal(t, count, p.FreeLen()+p.ReadyLen()+len(inHand))

	for _, b := range inHand[:3] {
		require.True(t, p.SubmitReady(b))
	}
	inHand = inHand[3:]
	assert.Equal(t, count, p.FreeLen()+p.ReadyLen()+len(inHand))

	got, ok := p.TakeReady(time.Millisecond)
	require.True(t, ok)
	inHand = append(inHand, got)
	assert.Equal(t, count, p.FreeLen()+p.ReadyLen()+len(inHand))

	for _, b := range inHand {
		p.ReleaseFree(b)
	}
	assert.Equal(t, count, p.FreeLen())
	assert.Equal(t, 0, p.ReadyLen())
}

func TestFillPercent(t *testing.T) {
	p, err := NewPool(4, 64)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		b, ok := p.AcquireFree()
		require.True(t, ok)
		require.True(t, p.SubmitReady(b))
		assert.Equal(t, i*25, p.FillPercent())
	}
}

func TestReleaseFreeNil(t *testing.T) {
	p, err := NewPool(2, 64)
	require.NoError(t, err)

	p.ReleaseFree(nil)
	assert.Equal(t, 2, p.FreeLen())
}
