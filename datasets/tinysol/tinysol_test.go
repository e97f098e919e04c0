package tinysol

import "context"
import "errors"
import "os"
import "path/filepath"
import "testing"

import "github.com/neurlang/musicfsl/audio"
import "github.com/neurlang/musicfsl/datasets"

func writeClip(t *testing.T, path string, value float32) {
	t.Helper()
	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = value
	}
	data, err := audio.EncodeWAV(samples, 8000)
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

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeClip(t, filepath.Join(root, "Brass", "Bass_Tuba", "ordinario", "a.wav"), 0.1)
	writeClip(t, filepath.Join(root, "Brass", "Bass_Tuba", "ordinario", "b.wav"), 0.2)
	writeClip(t, filepath.Join(root, "Winds", "Sax_Alto", "ordinario", "c.wav"), 0.3)
	writeClip(t, filepath.Join(root, "Strings", "Viola", "pizzicato", "d.wav"), 0.4)

	d, err := New(context.Background(), root, []string{"Bass Tuba", "Alto Saxophone"}, 8000, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 3 {
		t.Fatalf("%d clips", d.Len())
	}
	if got := d.Labels(); len(got) != 2 || got[0] != "Alto Saxophone" || got[1] != "Bass Tuba" {
		t.Fatalf("labels %v", got)
	}
	i := d.Indices("Alto Saxophone")[0]
	c, err := d.Clip(i)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Audio) != 4000 || c.Label != "Alto Saxophone" {
		t.Fatalf("clip %d samples label %q", len(c.Audio), c.Label)
	}
}

func TestMetadata(t *testing.T) {
	root := t.TempDir()
	writeClip(t, filepath.Join(root, "audio", "Strings", "Viola", "x.wav"), 0.1)
	writeClip(t, filepath.Join(root, "audio", "Strings", "Cello", "y.wav"), 0.1)
	csv := "Path,Fold,Family,Instrument (abbr.),Instrument (in full)\n" +
		"Strings/Viola/x.wav,0,Strings,Va,Viola\n" +
		"Strings/Cello/y.wav,1,Strings,Vc,Cello\n"
	if err := os.WriteFile(filepath.Join(root, MetadataFile), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := New(context.Background(), root, []string{"Viola"}, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.Clip(0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Label != "Viola" || len(c.Audio) != 16000 {
		t.Fatalf("clip %q with %d samples", c.Label, len(c.Audio))
	}
}

func TestMissingInstrument(t *testing.T) {
	root := t.TempDir()
	writeClip(t, filepath.Join(root, "Strings", "Viola", "ordinario", "a.wav"), 0.1)
	_, err := New(context.Background(), root, []string{"Viola", "Oboe"}, 8000, 1)
	if !errors.Is(err, ErrMissingInstrument) {
		t.Fatalf("got %v", err)
	}
}

func TestClipContext(t *testing.T) {
	root := t.TempDir()
	writeClip(t, filepath.Join(root, "Strings", "Viola", "ordinario", "a.wav"), 0.1)
	d, err := New(context.Background(), root, []string{"Viola"}, 8000, 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.ClipContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	var _ datasets.ContextDataset = d
	if _, err := datasets.LoadClip(ctx, d, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadClip: got %v, want context.Canceled", err)
	}
	if c, err := datasets.LoadClip(context.Background(), d, 0); err != nil || len(c.Audio) != 8000 {
		t.Fatalf("clip %d samples, error %v", len(c.Audio), err)
	}
}
