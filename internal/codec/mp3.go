package codec

import (
	"bytes"
	"fmt"

	"github.com/viert/go-lame"
)

// Fixed MP3 encoder settings: 192 kbps CBR at LAME quality level 2.
const (
	mp3Bitrate = 192
	mp3Quality = 2
)

// newMP3Encoder configures a LAME encoder writing into out.
func newMP3Encoder(out *bytes.Buffer, sampleRate int) (*lame.Encoder, error) {
	enc := lame.NewEncoder(out)

	err := enc.SetNumChannels(wavChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to set mp3 channel count: %w", err)
	}

	err = enc.SetInSamplerate(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to set mp3 sample rate: %w", err)
	}

	err = enc.SetBrate(mp3Bitrate)
	if err != nil {
		return nil, fmt.Errorf("failed to set mp3 bitrate: %w", err)
	}

	err = enc.SetQuality(mp3Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to set mp3 quality: %w", err)
	}

	return enc, nil
}

// StreamMP3 feeds the quantized waveform through the encoder in blocks of
// chunkSamples samples, emitting the encoder output after each block and a
// final flush chunk once all input is consumed. chunkSamples below one MP3
// frame is raised to the floor.
func StreamMP3(waveform Waveform, chunkSamples int, emit EmitFunc) error {
	if len(waveform.Samples) == 0 {
		return ErrEmptyWaveform
	}

	if chunkSamples < MinMP3ChunkSamples {
		chunkSamples = MinMP3ChunkSamples
	}

	var out bytes.Buffer

	enc, err := newMP3Encoder(&out, waveform.SampleRate)
	if err != nil {
		return err
	}

	pcm := pcm16Bytes(waveform.Samples)
	chunkBytes := chunkSamples * wavSampleWidth

	for start := 0; start < len(pcm); start += chunkBytes {
		end := min(start+chunkBytes, len(pcm))

		_, err = enc.Write(pcm[start:end])
		if err != nil {
			return fmt.Errorf("failed to encode mp3 block: %w", err)
		}

		err = emitAndReset(&out, emit)
		if err != nil {
			return err
		}
	}

	// Close drains the encoder's internal frame buffer into out.
	enc.Close()

	return emitAndReset(&out, emit)
}

// EncodeMP3 produces complete MP3 bytes. The output is the concatenation of
// the chunks StreamMP3 emits for the same waveform.
func EncodeMP3(waveform Waveform) ([]byte, error) {
	var buf bytes.Buffer

	err := StreamMP3(waveform, DefaultMP3ChunkSamples, func(chunk []byte) error {
		buf.Write(chunk)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// emitAndReset hands the accumulated encoder output to emit, skipping empty
// blocks, and resets the buffer for the next block.
func emitAndReset(out *bytes.Buffer, emit EmitFunc) error {
	if out.Len() == 0 {
		return nil
	}

	chunk := make([]byte, out.Len())
	copy(chunk, out.Bytes())
	out.Reset()

	return emit(chunk)
}
