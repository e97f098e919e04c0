package maxpool2d

import "testing"

import "github.com/neurlang/musicfsl/layer"

func TestPool(t *testing.T) {
	m := MustNew(2).Lay(nil)
	// 1x1x3x5, last row and column are dropped
	x := layer.FromFloat32s([]float32{
		1, 9, 2, 3, 100,
		4, 5, 8, 6, 100,
		100, 100, 100, 100, 100,
	}, 1, 1, 3, 5)
	y, err := m.Forward(x, true)
	if err != nil {
		t.Fatal(err)
	}
	if !y.Shape().Eq([]int{1, 1, 1, 2}) {
		t.Fatalf("shape %v", y.Shape())
	}
	ys := layer.Float32s(y)
	if ys[0] != 9 || ys[1] != 8 {
		t.Fatalf("pooled %v", ys)
	}
	dx, err := m.Backward(layer.FromFloat32s([]float32{1, 2}, 1, 1, 1, 2))
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{
		0, 1, 0, 0, 0,
		0, 0, 2, 0, 0,
		0, 0, 0, 0, 0,
	}
	for i, v := range layer.Float32s(dx) {
		if v != want[i] {
			t.Fatalf("dx = %v, want %v", layer.Float32s(dx), want)
		}
	}
}

func TestTooSmall(t *testing.T) {
	m := MustNew(4).Lay(nil)
	if _, err := m.Forward(layer.Zeros(1, 1, 3, 8), false); err == nil {
		t.Fatal("expected error")
	}
}
