package frame

import "encoding/binary"

// PCMFrame is a slice of interleaved float32 PCM samples in [-1, 1].
// Devices pass these along channels; a frame holds one chunk of audio,
// not a single sample instant.
type PCMFrame []float32

// Sample scaling constants shared by the pipeline boundaries.
// Incoming PCM is normalized to float32 for processing and expanded
// back to left-aligned int32 for the output peripheral.
const (
	Scale16In  = float32(1.0) / 32768.0
	Scale32In  = float32(1.0) / 2147483648.0
	Scale32Out = float32(2147483647.0)
)

// BytesPerSample returns the storage width of one sample for the given
// bit depth. Anything up to 16 bits is stored in two bytes, everything
// else in four, matching the wire format of the decode callback.
func BytesPerSample(bits uint8) int {
	if bits <= 16 {
		return 2
	}
	return 4
}

// Count returns the number of PCM frames contained in byteLen bytes of
// interleaved audio with the given bit depth and channel count.
// A zero channel count is treated as stereo.
func Count(byteLen int, bits uint8, channels uint8) int {
	if channels == 0 {
		channels = 2
	}
	bytesPerFrame := BytesPerSample(bits) * int(channels)
	if bytesPerFrame == 0 {
		return 0
	}
	return byteLen / bytesPerFrame
}

// Int16At reads the little-endian 16-bit sample at index i of data.
func Int16At(data []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(data[2*i:]))
}

// Int32At reads the little-endian 32-bit sample at index i of data.
func Int32At(data []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(data[4*i:]))
}

// ClampInt32 converts a float32 sample scaled by Scale32Out into an
// int32, saturating instead of wrapping on overflow.
func ClampInt32(v float32) int32 {
	if v >= 2147483647.0 {
		return 2147483647
	}
	if v <= -2147483648.0 {
		return -2147483648
	}
	return int32(v)
}

// U8ToS16 converts an 8-bit unsigned PCM sample to 16-bit signed.
func U8ToS16(sample byte) int16 {
	return (int16(sample) - 128) << 8
}
