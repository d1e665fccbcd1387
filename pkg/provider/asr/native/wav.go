package native

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// wavFormat holds the fields of a WAV fmt chunk that matter for decoding.
type wavFormat struct {
	audioFormat   uint16
	numChannels   uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// readWAV decodes the WAV file at path into mono float32 samples normalised
// to [-1.0, 1.0]. Only 16-bit PCM is supported, which is what the ffmpeg
// extraction step produces; multi-channel audio is down-mixed by averaging
// all channels per frame.
func readWAV(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("native: open wav %q: %w", path, err)
	}
	defer f.Close()

	var riff [4]byte
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return nil, fmt.Errorf("native: read riff header: %w", err)
	}
	if string(riff[:]) != "RIFF" {
		return nil, fmt.Errorf("native: %q is not a RIFF file", path)
	}
	var fileSize uint32
	if err := binary.Read(f, binary.LittleEndian, &fileSize); err != nil {
		return nil, fmt.Errorf("native: read riff size: %w", err)
	}
	var wave [4]byte
	if err := binary.Read(f, binary.LittleEndian, &wave); err != nil {
		return nil, fmt.Errorf("native: read wave id: %w", err)
	}
	if string(wave[:]) != "WAVE" {
		return nil, fmt.Errorf("native: %q is not a WAVE file", path)
	}

	var (
		format   wavFormat
		fmtFound bool
	)
	for {
		var chunkID [4]byte
		if err := binary.Read(f, binary.LittleEndian, &chunkID); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, errors.New("native: wav file has no data chunk")
			}
			return nil, fmt.Errorf("native: read chunk id: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("native: read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			if err := binary.Read(f, binary.LittleEndian, &format.audioFormat); err != nil {
				return nil, fmt.Errorf("native: read audio format: %w", err)
			}
			if err := binary.Read(f, binary.LittleEndian, &format.numChannels); err != nil {
				return nil, fmt.Errorf("native: read channel count: %w", err)
			}
			if err := binary.Read(f, binary.LittleEndian, &format.sampleRate); err != nil {
				return nil, fmt.Errorf("native: read sample rate: %w", err)
			}
			// Skip byte rate and block align.
			if _, err := f.Seek(6, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("native: skip fmt fields: %w", err)
			}
			if err := binary.Read(f, binary.LittleEndian, &format.bitsPerSample); err != nil {
				return nil, fmt.Errorf("native: read bits per sample: %w", err)
			}
			// Skip any fmt chunk extension.
			if chunkSize > 16 {
				if _, err := f.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("native: skip fmt extension: %w", err)
				}
			}
			fmtFound = true

		case "data":
			if !fmtFound {
				return nil, errors.New("native: wav data chunk precedes fmt chunk")
			}
			if format.audioFormat != 1 || format.bitsPerSample != 16 {
				return nil, fmt.Errorf("native: unsupported wav encoding (format %d, %d bits); need 16-bit PCM",
					format.audioFormat, format.bitsPerSample)
			}
			pcm := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, pcm); err != nil {
				return nil, fmt.Errorf("native: read pcm data: %w", err)
			}
			return pcmToFloat32Mono(pcm, int(format.numChannels)), nil

		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("native: skip %q chunk: %w", chunkID, err)
			}
		}
	}
}

// pcmToFloat32Mono converts 16-bit signed little-endian PCM to mono float32
// samples in [-1.0, 1.0], averaging all channels per frame. Any trailing odd
// byte is ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
