package checkpoint

import "bytes"
import "context"
import "errors"
import "os"
import "testing"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/storage"

func params() []*layer.Param {
	w := layer.NewParam("conv1.conv.weight", 2, 1, 3, 3)
	b := layer.NewParam("conv1.conv.bias", 2)
	for i := range layer.Float32s(w.Value) {
		layer.Float32s(w.Value)[i] = float32(i) * 0.25
	}
	layer.Float32s(b.Value)[1] = -1.5
	return []*layer.Param{w, b}
}

func TestRoundTrip(t *testing.T) {
	src := params()
	var buf bytes.Buffer
	if err := Write(&buf, &Checkpoint{SampleRate: 16000, Step: 50, ValAccuracy: 0.8, Params: FromParams(src)}); err != nil {
		t.Fatal(err)
	}
	c, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if c.SampleRate != 16000 || c.Step != 50 || c.ValAccuracy != 0.8 {
		t.Fatalf("metadata %+v", c)
	}
	dst := []*layer.Param{layer.NewParam("conv1.conv.weight", 2, 1, 3, 3), layer.NewParam("conv1.conv.bias", 2)}
	if err := c.Apply(dst); err != nil {
		t.Fatal(err)
	}
	for i := range src {
		a, b := layer.Float32s(src[i].Value), layer.Float32s(dst[i].Value)
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("%s[%d] = %v, want %v", dst[i].Name, j, b[j], a[j])
			}
		}
	}
}

func TestApplyMismatch(t *testing.T) {
	c := &Checkpoint{Params: FromParams(params())}
	if err := c.Apply(params()[:1]); err == nil {
		t.Fatal("expected count error")
	}
	renamed := params()
	renamed[1].Name = "conv1.gn.bias"
	if err := c.Apply(renamed); err == nil {
		t.Fatal("expected name error")
	}
	reshaped := []*layer.Param{layer.NewParam("conv1.conv.weight", 2, 1, 1, 1), layer.NewParam("conv1.conv.bias", 2)}
	if err := c.Apply(reshaped); err == nil {
		t.Fatal("expected shape error")
	}
}

func TestStore(t *testing.T) {
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := Load(ctx, store, "best.json.lzw"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("load missing: %v", err)
	}
	if err := Save(ctx, store, "best.json.lzw", &Checkpoint{Step: 3, Params: FromParams(params())}); err != nil {
		t.Fatal(err)
	}
	c, err := Load(ctx, store, "best.json.lzw")
	if err != nil {
		t.Fatal(err)
	}
	if c.Step != 3 || len(c.Params) != 2 {
		t.Fatalf("loaded %+v", c)
	}
}

func TestCorrupt(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not lzw json"))); err == nil {
		t.Fatal("expected error")
	}
}
