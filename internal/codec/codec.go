// Package codec converts normalized floating-point waveforms into WAV or
// MP3 bytes, either fully materialized or as a lazy sequence of chunks
// suitable for incremental transmission.
//
// Both modes share one quantization and one encoder configuration, so the
// streamed chunks concatenate to exactly the whole-buffer output.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Output formats.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// MIME types for the supported formats.
const (
	MIMETypeWAV = "audio/wav"
	MIMETypeMP3 = "audio/mpeg"
)

// Chunking defaults and floors, in samples. The floors guard against
// pathological tiny chunks; 1152 samples is one MP3 frame.
const (
	DefaultWAVChunkSamples = 65536
	MinWAVChunkSamples     = 4096
	DefaultMP3ChunkSamples = 48000
	MinMP3ChunkSamples     = 1152
)

// 16-bit PCM quantization scale.
const pcmScale = 32767.0

// Static errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyWaveform     = errors.New("waveform has no samples")
)

// Waveform is a normalized mono waveform plus its sample rate.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// EmitFunc receives one encoded chunk. Returning an error aborts the stream;
// the chunk sequence is finite and not restartable.
type EmitFunc func(chunk []byte) error

// MIMETypeFor returns the MIME type for a supported format.
func MIMETypeFor(format string) (string, error) {
	switch format {
	case FormatWAV:
		return MIMETypeWAV, nil
	case FormatMP3:
		return MIMETypeMP3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Encode produces the complete encoded bytes for the waveform in the given
// format, using the default chunk sizes.
func Encode(waveform Waveform, format string) ([]byte, error) {
	switch format {
	case FormatWAV:
		return EncodeWAV(waveform)
	case FormatMP3:
		return EncodeMP3(waveform)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Stream produces the chunked encoding of the waveform in the given format.
func Stream(waveform Waveform, format string, chunkSamples int, emit EmitFunc) error {
	switch format {
	case FormatWAV:
		return StreamWAV(waveform, chunkSamples, emit)
	case FormatMP3:
		return StreamMP3(waveform, chunkSamples, emit)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// pcm16Bytes quantizes normalized samples to little-endian 16-bit signed
// PCM, clamping to [-1, 1] before scaling.
func pcm16Bytes(samples []float64) []byte {
	out := make([]byte, 2*len(samples))

	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}

		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(sample*pcmScale))))
	}

	return out
}
