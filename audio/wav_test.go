package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func sine(n, sampleRate int, frequency float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate)))
	}
	return out
}

// wav builds a file from a fmt chunk body and raw data, with an extra chunk in between
func wav(fmtBody, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+8+len(fmtBody)+8+3+1+8+len(data)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(len(fmtBody)))
	buf.Write(fmtBody)
	// odd sized chunk followed by a pad byte
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{1, 2, 3, 0})
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

func fmtChunk(tag uint16, channels, sampleRate, bits int) []byte {
	var buf bytes.Buffer
	align := channels * bits / 8
	binary.Write(&buf, binary.LittleEndian, tag)
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*align))
	binary.Write(&buf, binary.LittleEndian, uint16(align))
	binary.Write(&buf, binary.LittleEndian, uint16(bits))
	return buf.Bytes()
}

func TestEncodeDecodeWAV(t *testing.T) {
	samples := sine(800, 8000, 440)
	data, err := EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("Expected WAV size %d, got %d", 44+len(samples)*2, len(data))
	}
	a, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if a.SampleRate != 8000 || len(a.Channels) != 1 || a.Len() != len(samples) {
		t.Fatalf("decoded %d Hz, %d channels, %d frames", a.SampleRate, len(a.Channels), a.Len())
	}
	for i, v := range a.Channels[0] {
		if math.Abs(float64(v-samples[i])) > 1e-4 {
			t.Fatalf("sample %d: %v != %v", i, v, samples[i])
		}
	}
	if math.Abs(a.Duration()-0.1) > 1e-9 {
		t.Errorf("duration %v", a.Duration())
	}
}

func TestDecodeFormats(t *testing.T) {
	tests := []struct {
		name string
		fmt  []byte
		data []byte
		want [][]float32
	}{
		{"pcm8", fmtChunk(formatPCM, 1, 8000, 8), []byte{128, 255, 0}, [][]float32{{0, 127.0 / 128, -1}}},
		{"pcm16 stereo", fmtChunk(formatPCM, 2, 8000, 16), []byte{0, 0x40, 0, 0xC0}, [][]float32{{0.5}, {-0.5}}},
		{"pcm24", fmtChunk(formatPCM, 1, 8000, 24), []byte{0, 0, 0x40, 0, 0, 0xC0}, [][]float32{{0.5, -0.5}}},
		{"pcm32", fmtChunk(formatPCM, 1, 8000, 32), []byte{0, 0, 0, 0x40}, [][]float32{{0.5}}},
		{"float32", fmtChunk(formatFloat, 1, 8000, 32), binary.LittleEndian.AppendUint32(nil, math.Float32bits(0.25)), [][]float32{{0.25}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := DecodeWAV(wav(tc.fmt, tc.data))
			if err != nil {
				t.Fatal(err)
			}
			if len(a.Channels) != len(tc.want) {
				t.Fatalf("%d channels", len(a.Channels))
			}
			for c := range tc.want {
				for i := range tc.want[c] {
					if a.Channels[c][i] != tc.want[c][i] {
						t.Fatalf("channel %d sample %d: %v, want %v", c, i, a.Channels[c][i], tc.want[c][i])
					}
				}
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	good := wav(fmtChunk(formatPCM, 1, 8000, 16), []byte{0, 0})
	tests := map[string][]byte{
		"short":    []byte("RIFF"),
		"not riff": append([]byte("RIFX"), good[4:]...),
		"not wave": append(append([]byte(nil), good[:8]...), append([]byte("AVI "), good[12:]...)...),
		"alaw":     wav(fmtChunk(6, 1, 8000, 8), []byte{0}),
		"pcm12":    wav(fmtChunk(formatPCM, 1, 8000, 12), []byte{0, 0}),
		"no data":  good[:len(good)-10],
	}
	for name, data := range tests {
		if _, err := DecodeWAV(data); !errors.Is(err, ErrFormat) {
			t.Errorf("%s: got %v, want ErrFormat", name, err)
		}
	}
}

func TestMono(t *testing.T) {
	m := Mono([][]float32{{1, 0, -1}, {0, 0, 1}})
	for i, want := range []float32{0.5, 0, 0} {
		if m[i] != want {
			t.Fatalf("mono %v", m)
		}
	}
}

func TestFix(t *testing.T) {
	if got := Fix([]float32{1, 2, 3}, 2); len(got) != 2 || got[1] != 2 {
		t.Fatalf("crop %v", got)
	}
	if got := Fix([]float32{1, 2}, 4); len(got) != 4 || got[1] != 2 || got[3] != 0 {
		t.Fatalf("pad %v", got)
	}
}

func TestDecode(t *testing.T) {
	data, err := EncodeWAV(sine(24000, 48000, 440), 48000)
	if err != nil {
		t.Fatal(err)
	}
	x, err := Decode(data, 16000, DefaultDuration)
	if err != nil {
		t.Fatal(err)
	}
	if len(x) != 16000 {
		t.Fatalf("%d samples", len(x))
	}
	// half a second of audio followed by silence
	if x[15999] != 0 {
		t.Fatalf("padding not silent: %v", x[15999])
	}
	if _, err := Decode(data, 16000, 0); err == nil {
		t.Fatal("expected duration error")
	}
}

func TestResample(t *testing.T) {
	in := sine(4800, 48000, 440)
	same, err := Resample(in, 48000, 48000)
	if err != nil || len(same) != len(in) {
		t.Fatalf("identity resample: %v %d", err, len(same))
	}
	for _, c := range []struct{ n, from, to int }{
		{4800, 48000, 16000},
		{16000, 48000, 16000},
		{44100, 44100, 16000},
		{8000, 44100, 16000},
		{8000, 16000, 44100},
	} {
		out, err := Resample(sine(c.n, c.from, 440), c.from, c.to)
		if err != nil {
			t.Fatal(err)
		}
		want := c.n * c.to / c.from
		if d := len(out) - want; d < -4 || d > 4 {
			t.Errorf("%d samples %d -> %d Hz: got %d, want about %d", c.n, c.from, c.to, len(out), want)
		}
	}
	if _, err := Resample(in, 0, 16000); err == nil {
		t.Fatal("expected rate error")
	}
}
