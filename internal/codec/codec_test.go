// Package codec_test tests waveform encoding and streaming.
package codec_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/espeech/synthd/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 24000

// testWaveform builds a short sine wave with a few out-of-range samples to
// exercise clamping.
func testWaveform(numSamples int) codec.Waveform {
	samples := make([]float64, numSamples)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * 440 * float64(i) / testSampleRate)
	}

	samples[0] = 1.5
	samples[1] = -1.5

	return codec.Waveform{Samples: samples, SampleRate: testSampleRate}
}

func collectStream(t *testing.T, waveform codec.Waveform, format string, chunkSamples int) [][]byte {
	t.Helper()

	var chunks [][]byte

	err := codec.Stream(waveform, format, chunkSamples, func(chunk []byte) error {
		chunks = append(chunks, chunk)

		return nil
	})
	require.NoError(t, err)

	return chunks
}

func concat(chunks [][]byte) []byte {
	var out []byte
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}

	return out
}

func TestWAVHeaderSizes(t *testing.T) {
	t.Parallel()

	const numSamples = 12345

	header := codec.WAVHeader(numSamples, testSampleRate)
	require.Len(t, header, 44)

	assert.Equal(t, "RIFF", string(header[0:4]))
	assert.Equal(t, "WAVE", string(header[8:12]))

	dataSize := binary.LittleEndian.Uint32(header[40:44])
	riffSize := binary.LittleEndian.Uint32(header[4:8])

	assert.Equal(t, uint32(numSamples*2), dataSize)
	assert.Equal(t, uint32(36+numSamples*2), riffSize)
}

func TestStreamWAVMatchesEncodeWAV(t *testing.T) {
	t.Parallel()

	waveform := testWaveform(100000)

	whole, err := codec.EncodeWAV(waveform)
	require.NoError(t, err)

	chunks := collectStream(t, waveform, codec.FormatWAV, 8192)

	assert.Equal(t, whole, concat(chunks))
	assert.Equal(t, 44+2*len(waveform.Samples), len(whole))

	// First chunk is the header, the rest are PCM slices.
	require.NotEmpty(t, chunks)
	assert.Equal(t, "RIFF", string(chunks[0][0:4]))
	assert.Len(t, chunks[0], 44)
}

func TestStreamWAVEnforcesChunkFloor(t *testing.T) {
	t.Parallel()

	waveform := testWaveform(20000)

	// A pathological 1-sample chunk size is raised to the 4096-sample floor.
	chunks := collectStream(t, waveform, codec.FormatWAV, 1)

	for _, chunk := range chunks[1 : len(chunks)-1] {
		assert.Equal(t, codec.MinWAVChunkSamples*2, len(chunk))
	}
}

func TestStreamMP3MatchesEncodeMP3(t *testing.T) {
	t.Parallel()

	waveform := testWaveform(60000)

	whole, err := codec.EncodeMP3(waveform)
	require.NoError(t, err)
	require.NotEmpty(t, whole)

	// Block boundaries must not change the encoded bytes.
	small := collectStream(t, waveform, codec.FormatMP3, codec.MinMP3ChunkSamples)
	large := collectStream(t, waveform, codec.FormatMP3, codec.DefaultMP3ChunkSamples)

	assert.Equal(t, whole, concat(small))
	assert.Equal(t, whole, concat(large))
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	t.Parallel()

	waveform := testWaveform(30000)

	encoded, err := codec.EncodeWAV(waveform)
	require.NoError(t, err)

	decoded, err := codec.DecodeWAV(encoded)
	require.NoError(t, err)

	assert.Equal(t, testSampleRate, decoded.SampleRate)
	require.Len(t, decoded.Samples, len(waveform.Samples))

	// Re-encoding the decoded waveform must reproduce the same bytes:
	// quantization is stable across a decode/encode cycle.
	reencoded, err := codec.EncodeWAV(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := codec.DecodeWAV([]byte("definitely not a wav file"))
	require.ErrorIs(t, err, codec.ErrNotWAV)
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := codec.Encode(testWaveform(100), "flac")
	require.ErrorIs(t, err, codec.ErrUnsupportedFormat)
}

func TestStreamEmptyWaveform(t *testing.T) {
	t.Parallel()

	err := codec.Stream(codec.Waveform{SampleRate: testSampleRate}, codec.FormatWAV, 0,
		func([]byte) error { return nil })
	require.ErrorIs(t, err, codec.ErrEmptyWaveform)
}
