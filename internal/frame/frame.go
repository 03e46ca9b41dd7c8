package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BytesPerValue is the size of one encoded reading (IEEE-754 float32).
const BytesPerValue = 4

// ErrFrameShapeMismatch is returned when a raw buffer does not decode to the
// expected frame_length x channel_count shape.
var ErrFrameShapeMismatch = errors.New("frame shape mismatch")

// Frame is one device poll's worth of readings, indexed [sample][channel].
type Frame [][]float32

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f) }

// BufferSize returns the number of bytes a raw frame of the given shape occupies.
func BufferSize(frameLength, channelCount int) int {
	return frameLength * channelCount * BytesPerValue
}

// Decode reinterprets buf as little-endian float32 readings and reshapes them
// into a frameLength x channelCount matrix. It does not retain buf.
func Decode(buf []byte, frameLength, channelCount int) (Frame, error) {
	if frameLength <= 0 || channelCount <= 0 {
		return nil, fmt.Errorf("%w: invalid shape %dx%d", ErrFrameShapeMismatch, frameLength, channelCount)
	}
	want := BufferSize(frameLength, channelCount)
	if len(buf) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d (%dx%d)", ErrFrameShapeMismatch, len(buf), want, frameLength, channelCount)
	}

	values := make([]float32, frameLength*channelCount)
	for i := range values {
		bits := binary.LittleEndian.Uint32(buf[i*BytesPerValue:])
		values[i] = math.Float32frombits(bits)
	}

	f := make(Frame, frameLength)
	for s := 0; s < frameLength; s++ {
		f[s] = values[s*channelCount : (s+1)*channelCount : (s+1)*channelCount]
	}
	return f, nil
}

// Encode is the inverse of Decode. Drivers use it to produce raw buffers.
func Encode(dst []byte, samples [][]float32) ([]byte, error) {
	if len(samples) == 0 {
		return dst[:0], nil
	}
	channels := len(samples[0])
	need := BufferSize(len(samples), channels)
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]

	off := 0
	for s, sample := range samples {
		if len(sample) != channels {
			return nil, fmt.Errorf("%w: sample %d has %d channels, want %d", ErrFrameShapeMismatch, s, len(sample), channels)
		}
		for _, v := range sample {
			binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
			off += BytesPerValue
		}
	}
	return dst, nil
}
