package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrFormat is wrapped by every decoding error.
var ErrFormat = errors.New("audio: unsupported or malformed WAV data")

const (
	formatPCM        = 1
	formatFloat      = 3
	formatExtensible = 0xFFFE
)

// WAVHeader represents the canonical 44 byte header of a mono 16-bit PCM file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Audio is decoded, deinterleaved audio scaled to [-1, 1].
type Audio struct {
	SampleRate int
	Channels   [][]float32
}

// Len returns the number of frames.
func (a *Audio) Len() int {
	if len(a.Channels) == 0 {
		return 0
	}
	return len(a.Channels[0])
}

// Duration returns the length in seconds.
func (a *Audio) Duration() float64 {
	if a.SampleRate == 0 {
		return 0
	}
	return float64(a.Len()) / float64(a.SampleRate)
}

// EncodeWAV encodes mono samples in [-1, 1] as 16-bit PCM WAV. Samples
// outside the range are clipped.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   formatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s >= 1:
			pcm[i] = math.MaxInt16
		case s <= -1:
			pcm[i] = math.MinInt16
		default:
			pcm[i] = int16(s * 32767)
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	return buf.Bytes(), nil
}

type format struct {
	tag           uint16
	channels      int
	sampleRate    int
	blockAlign    int
	bitsPerSample int
}

// DecodeWAV decodes a RIFF/WAVE file holding 8, 16, 24 or 32-bit integer PCM
// or 32-bit IEEE float samples. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (*Audio, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: need at least 12 bytes, got %d", ErrFormat, len(data))
	}
	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("%w: missing RIFF header", ErrFormat)
	}
	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing WAVE format", ErrFormat)
	}

	var f *format
	var payload []byte
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		if size > len(body) {
			if id != "data" {
				return nil, fmt.Errorf("%w: chunk %q truncated", ErrFormat, id)
			}
			// streaming writers leave the data size unset
			size = len(body)
		}
		body = body[:size]
		switch id {
		case "fmt ":
			var err error
			if f, err = parseFormat(body); err != nil {
				return nil, err
			}
		case "data":
			payload = body
		}
		if payload != nil && f != nil {
			break
		}
		// chunks are word aligned
		pos += 8 + size + size&1
	}
	if f == nil {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrFormat)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrFormat)
	}

	frames := len(payload) / f.blockAlign
	if frames == 0 {
		return nil, fmt.Errorf("%w: no audio data found", ErrFormat)
	}
	a := &Audio{SampleRate: f.sampleRate, Channels: make([][]float32, f.channels)}
	for c := range a.Channels {
		a.Channels[c] = make([]float32, frames)
	}
	width := f.bitsPerSample / 8
	for i := 0; i < frames; i++ {
		frame := payload[i*f.blockAlign:]
		for c := 0; c < f.channels; c++ {
			a.Channels[c][i] = sample(f, frame[c*width:(c+1)*width])
		}
	}
	return a, nil
}

func parseFormat(b []byte) (*format, error) {
	if len(b) < 16 {
		return nil, fmt.Errorf("%w: fmt chunk too short", ErrFormat)
	}
	f := &format{
		tag:           binary.LittleEndian.Uint16(b[0:2]),
		channels:      int(binary.LittleEndian.Uint16(b[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(b[4:8])),
		blockAlign:    int(binary.LittleEndian.Uint16(b[12:14])),
		bitsPerSample: int(binary.LittleEndian.Uint16(b[14:16])),
	}
	if f.tag == formatExtensible {
		if len(b) < 26 {
			return nil, fmt.Errorf("%w: extensible fmt chunk too short", ErrFormat)
		}
		// first two bytes of the sub format GUID hold the format tag
		f.tag = binary.LittleEndian.Uint16(b[24:26])
	}
	if f.channels <= 0 {
		return nil, fmt.Errorf("%w: %d channels", ErrFormat, f.channels)
	}
	if f.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate: %d", ErrFormat, f.sampleRate)
	}
	switch {
	case f.tag == formatPCM && (f.bitsPerSample == 8 || f.bitsPerSample == 16 || f.bitsPerSample == 24 || f.bitsPerSample == 32):
	case f.tag == formatFloat && f.bitsPerSample == 32:
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits per sample", ErrFormat, f.tag, f.bitsPerSample)
	}
	if f.blockAlign < f.channels*f.bitsPerSample/8 {
		return nil, fmt.Errorf("%w: block align %d too small", ErrFormat, f.blockAlign)
	}
	return f, nil
}

func sample(f *format, b []byte) float32 {
	switch f.bitsPerSample {
	case 8:
		// 8-bit PCM is unsigned
		return (float32(b[0]) - 128) / 128
	case 16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(uint32(b[0])|uint32(b[1])<<8|uint32(b[2])<<16) << 8 >> 8
		return float32(v) / (1 << 23)
	default:
		u := binary.LittleEndian.Uint32(b)
		if f.tag == formatFloat {
			return math.Float32frombits(u)
		}
		return float32(float64(int32(u)) / (1 << 31))
	}
}
