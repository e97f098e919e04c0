package conv2d

import "math"
import "math/rand/v2"
import "testing"

import "github.com/neurlang/musicfsl/layer"

func random(rng *rand.Rand, shape ...int) []float32 {
	size := 1
	for _, s := range shape {
		size *= s
	}
	o := make([]float32, size)
	for i := range o {
		o[i] = float32(rng.NormFloat64())
	}
	return o
}

// loss is sum(y * r) evaluated in float64
func loss(t *testing.T, m layer.Module, x []float32, r []float32, shape ...int) float64 {
	y, err := m.Forward(layer.FromFloat32s(append([]float32(nil), x...), shape...), false)
	if err != nil {
		t.Fatal(err)
	}
	var l float64
	for i, v := range layer.Float32s(y) {
		l += float64(v) * float64(r[i])
	}
	return l
}

func TestShape(t *testing.T) {
	m := MustNew(3, 5, 3).Lay(rand.New(rand.NewPCG(1, 2)))
	y, err := m.Forward(layer.Zeros(2, 3, 7, 4), false)
	if err != nil {
		t.Fatal(err)
	}
	if !y.Shape().Eq([]int{2, 5, 7, 4}) {
		t.Fatalf("shape %v", y.Shape())
	}
	if _, err := m.Forward(layer.Zeros(2, 4, 7, 4), false); err == nil {
		t.Fatal("expected channel mismatch error")
	}
	if _, err := New(3, 5, 2); err == nil {
		t.Fatal("expected even kernel error")
	}
}

// identity kernel keeps the input
func TestIdentity(t *testing.T) {
	m := MustNew(1, 1, 3).Lay(rand.New(rand.NewPCG(1, 2)))
	p := m.Params()
	w := layer.Float32s(p[0].Value)
	for i := range w {
		w[i] = 0
	}
	w[4] = 1
	layer.Float32s(p[1].Value)[0] = 0.5
	x := []float32{1, 2, 3, 4, 5, 6}
	y, err := m.Forward(layer.FromFloat32s(x, 1, 1, 2, 3), false)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range layer.Float32s(y) {
		if v != x[i]+0.5 {
			t.Fatalf("y[%d] = %v, want %v", i, v, x[i]+0.5)
		}
	}
}

func TestGradient(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	shape := []int{2, 2, 4, 5}
	m := MustNew(2, 3, 3).Lay(rng)
	x := random(rng, shape...)
	r := random(rng, 2, 3, 4, 5)

	if _, err := m.Forward(layer.FromFloat32s(append([]float32(nil), x...), shape...), true); err != nil {
		t.Fatal(err)
	}
	dx, err := m.Backward(layer.FromFloat32s(r, 2, 3, 4, 5))
	if err != nil {
		t.Fatal(err)
	}
	const eps = 1e-2
	check := func(name string, got, want float64) {
		if math.Abs(got-want) > 1e-2*(1+math.Abs(want)) {
			t.Errorf("%s: analytic %v, numeric %v", name, got, want)
		}
	}
	dxs := layer.Float32s(dx)
	for i := 0; i < len(x); i += 7 {
		old := x[i]
		x[i] = old + eps
		lp := loss(t, m, x, r, shape...)
		x[i] = old - eps
		lm := loss(t, m, x, r, shape...)
		x[i] = old
		check("dx", float64(dxs[i]), (lp-lm)/(2*eps))
	}
	for _, p := range m.Params() {
		v, g := layer.Float32s(p.Value), layer.Float32s(p.Grad)
		for i := 0; i < len(v); i += 5 {
			old := v[i]
			v[i] = old + eps
			lp := loss(t, m, x, r, shape...)
			v[i] = old - eps
			lm := loss(t, m, x, r, shape...)
			v[i] = old
			check(p.Name, float64(g[i]), (lp-lm)/(2*eps))
		}
	}
}

func TestBackwardWithoutForward(t *testing.T) {
	m := MustNew(1, 1, 1).Lay(rand.New(rand.NewPCG(1, 2)))
	if _, err := m.Backward(layer.Zeros(1, 1, 2, 2)); err == nil {
		t.Fatal("expected error")
	}
}
