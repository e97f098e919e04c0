package inference

import "context"
import "errors"
import "math"
import "os"
import "path/filepath"
import "testing"

import "github.com/neurlang/musicfsl/audio"
import "github.com/neurlang/musicfsl/backbone"
import "github.com/neurlang/musicfsl/checkpoint"
import "github.com/neurlang/musicfsl/layer/convblock"
import "github.com/neurlang/musicfsl/storage"

const rate = 8000
const duration = 1.6

var tiny = []convblock.Config{
	{InChannels: 1, OutChannels: 4, KernelSize: 3, Stride: 1, Padding: "same", NumGroups: 2, MaxPoolSize: 8},
	{InChannels: 4, OutChannels: 512, KernelSize: 1, Stride: 1, Padding: "same", NumGroups: 32, MaxPoolSize: 8},
}

func tone(freq float64) []float32 {
	x := make([]float32, audio.Samples(rate, duration))
	for i := range x {
		x[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return x
}

func writeWAV(t *testing.T, path string, x []float32) {
	t.Helper()
	data, err := audio.EncodeWAV(x, rate)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	writeWAV(t, filepath.Join(dir, "support", "low", "1.wav"), tone(220))
	writeWAV(t, filepath.Join(dir, "support", "low", "2.WAV"), tone(220))
	writeWAV(t, filepath.Join(dir, "support", "high", "1.wav"), tone(1760))
	if err := os.WriteFile(filepath.Join(dir, "support", "low", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeWAV(t, filepath.Join(dir, "query", "a.wav"), tone(220))
	writeWAV(t, filepath.Join(dir, "query", "b.wav"), tone(1760))

	c, err := New(backbone.MustNew(rate, backbone.WithBlocks(tiny)), duration)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Classify(context.Background(), filepath.Join(dir, "query", "a.wav")); !errors.Is(err, ErrNoSupport) {
		t.Fatalf("got %v, want ErrNoSupport", err)
	}
	if err := c.FitDir(context.Background(), filepath.Join(dir, "support")); err != nil {
		t.Fatal(err)
	}
	if got := c.Classes(); len(got) != 2 || got[0] != "high" || got[1] != "low" {
		t.Fatalf("classes %v", got)
	}
	preds, err := c.Classify(context.Background(), filepath.Join(dir, "query", "a.wav"), filepath.Join(dir, "query", "b.wav"))
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"low", "high"} {
		p := preds[i]
		if p.Label != want || len(p.Logits) != 2 || p.Confidence < 0.5 || p.Confidence > 1 {
			t.Fatalf("prediction %d: %+v, want %s", i, p, want)
		}
	}
	if _, err := c.Classify(context.Background(), filepath.Join(dir, "query", "missing.wav")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestSupportDir(t *testing.T) {
	if _, err := SupportDir(t.TempDir()); !errors.Is(err, ErrNoSupport) {
		t.Fatalf("got %v, want ErrNoSupport", err)
	}
}

func TestTooShort(t *testing.T) {
	b := backbone.MustNew(rate, backbone.WithBlocks(tiny))
	if _, err := New(b, 0.5); !errors.Is(err, backbone.ErrInputShape) {
		t.Fatalf("got %v, want ErrInputShape", err)
	}
}

func TestLoad(t *testing.T) {
	b := backbone.MustNew(rate, backbone.WithBlocks(tiny), backbone.WithSeed(9))
	loc, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "best.json.lzw"), storage.S3Options{})
	if err != nil {
		t.Fatal(err)
	}
	c := &checkpoint.Checkpoint{SampleRate: rate, Blocks: b.Blocks(), Params: checkpoint.FromParams(b.Params())}
	if err := checkpoint.Save(context.Background(), loc.Store, loc.Path, c); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(context.Background(), loc, duration)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := New(b, duration)
	if err != nil {
		t.Fatal(err)
	}
	x := [][]float32{tone(440)}
	e1, err := loaded.embed(x)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := ref.embed(x)
	if err != nil {
		t.Fatal(err)
	}
	a, bb := e1.Data().([]float32), e2.Data().([]float32)
	for i := range a {
		if a[i] != bb[i] {
			t.Fatalf("embedding %d differs: %v vs %v", i, a[i], bb[i])
		}
	}
}
