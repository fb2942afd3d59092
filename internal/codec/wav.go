package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Canonical WAV constants for 16-bit mono PCM.
const (
	wavHeaderSize  = 44
	wavFmtSize     = 16
	wavAudioPCM    = 1
	wavChannels    = 1
	wavSampleWidth = 2
	wavBitsPerSamp = 16
	wavRIFFExtra   = 36
)

// WAV parsing errors.
var (
	ErrNotWAV          = errors.New("not a RIFF/WAVE stream")
	ErrWAVNotPCM16Mono = errors.New("wav stream is not 16-bit mono PCM")
	ErrWAVTruncated    = errors.New("wav stream truncated")
)

// WAVHeader builds the canonical 44-byte header for a 16-bit mono PCM
// stream of numSamples samples.
func WAVHeader(numSamples, sampleRate int) []byte {
	dataSize := numSamples * wavSampleWidth * wavChannels
	byteRate := sampleRate * wavChannels * wavSampleWidth

	header := make([]byte, 0, wavHeaderSize)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(wavRIFFExtra+dataSize))
	header = append(header, "WAVEfmt "...)
	header = binary.LittleEndian.AppendUint32(header, wavFmtSize)
	header = binary.LittleEndian.AppendUint16(header, wavAudioPCM)
	header = binary.LittleEndian.AppendUint16(header, wavChannels)
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(byteRate))
	header = binary.LittleEndian.AppendUint16(header, wavChannels*wavSampleWidth)
	header = binary.LittleEndian.AppendUint16(header, wavBitsPerSamp)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataSize))

	return header
}

// StreamWAV emits the header as the first chunk, then raw PCM slices of
// chunkSamples samples each. chunkSamples below the floor is raised to it.
func StreamWAV(waveform Waveform, chunkSamples int, emit EmitFunc) error {
	if len(waveform.Samples) == 0 {
		return ErrEmptyWaveform
	}

	if chunkSamples < MinWAVChunkSamples {
		chunkSamples = MinWAVChunkSamples
	}

	pcm := pcm16Bytes(waveform.Samples)

	err := emit(WAVHeader(len(waveform.Samples), waveform.SampleRate))
	if err != nil {
		return err
	}

	chunkBytes := chunkSamples * wavSampleWidth
	for start := 0; start < len(pcm); start += chunkBytes {
		end := min(start+chunkBytes, len(pcm))

		err = emit(pcm[start:end])
		if err != nil {
			return err
		}
	}

	return nil
}

// EncodeWAV produces complete WAV bytes. The output is the concatenation of
// the chunks StreamWAV emits for the same waveform.
func EncodeWAV(waveform Waveform) ([]byte, error) {
	var buf bytes.Buffer

	err := StreamWAV(waveform, DefaultWAVChunkSamples, func(chunk []byte) error {
		buf.Write(chunk)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeWAV parses a 16-bit mono PCM WAV stream back into a waveform. It is
// the inverse of EncodeWAV up to quantization and exists for the engine
// adapter, which receives WAV bytes from the inference sidecar.
func DecodeWAV(data []byte) (Waveform, error) {
	if len(data) < wavHeaderSize ||
		!bytes.Equal(data[0:4], []byte("RIFF")) ||
		!bytes.Equal(data[8:12], []byte("WAVE")) {
		return Waveform{}, ErrNotWAV
	}

	sampleRate, pcm, err := scanWAVChunks(data[12:])
	if err != nil {
		return Waveform{}, err
	}

	samples := make([]float64, len(pcm)/wavSampleWidth)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / pcmScale
	}

	return Waveform{Samples: samples, SampleRate: sampleRate}, nil
}

// scanWAVChunks walks the RIFF chunk list and returns the sample rate from
// the fmt chunk and the raw bytes of the data chunk.
func scanWAVChunks(rest []byte) (int, []byte, error) {
	var (
		sampleRate int
		pcm        []byte
	)

	for len(rest) >= 8 {
		chunkID := string(rest[0:4])
		chunkLen := int(binary.LittleEndian.Uint32(rest[4:8]))

		if len(rest) < 8+chunkLen {
			return 0, nil, ErrWAVTruncated
		}

		body := rest[8 : 8+chunkLen]

		switch chunkID {
		case "fmt ":
			if chunkLen < wavFmtSize {
				return 0, nil, ErrWAVTruncated
			}

			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			bits := binary.LittleEndian.Uint16(body[14:16])

			if audioFormat != wavAudioPCM || channels != wavChannels || bits != wavBitsPerSamp {
				return 0, nil, fmt.Errorf(
					"%w: format=%d channels=%d bits=%d",
					ErrWAVNotPCM16Mono, audioFormat, channels, bits,
				)
			}

			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			pcm = body
		}

		// Chunks are word-aligned.
		if chunkLen%2 == 1 {
			chunkLen++
		}

		rest = rest[min(8+chunkLen, len(rest)):]
	}

	if sampleRate == 0 || pcm == nil {
		return 0, nil, ErrWAVTruncated
	}

	return sampleRate, pcm, nil
}
