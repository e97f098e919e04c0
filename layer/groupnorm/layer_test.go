package groupnorm

import "math"
import "math/rand/v2"
import "testing"

import "github.com/neurlang/musicfsl/layer"

func TestNormalized(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	m := MustNew(2, 4).Lay(rng)
	x := make([]float32, 3*4*5*5)
	for i := range x {
		x[i] = float32(rng.NormFloat64()*3 + 7)
	}
	y, err := m.Forward(layer.FromFloat32s(x, 3, 4, 5, 5), false)
	if err != nil {
		t.Fatal(err)
	}
	ys := layer.Float32s(y)
	const size = 2 * 5 * 5
	for g := 0; g < 3*2; g++ {
		var mean, variance float64
		for _, v := range ys[g*size : (g+1)*size] {
			mean += float64(v)
		}
		mean /= size
		for _, v := range ys[g*size : (g+1)*size] {
			variance += (float64(v) - mean) * (float64(v) - mean)
		}
		variance /= size
		if math.Abs(mean) > 1e-4 || math.Abs(variance-1) > 1e-3 {
			t.Errorf("group %d: mean %v variance %v", g, mean, variance)
		}
	}
}

func TestNew(t *testing.T) {
	if _, err := New(3, 4); err == nil {
		t.Fatal("expected divisibility error")
	}
	if _, err := New(0, 4); err == nil {
		t.Fatal("expected positive groups error")
	}
}

func TestGradient(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	shape := []int{2, 4, 3, 3}
	m := MustNew(2, 4).Lay(rng)
	// non trivial affine transform
	for _, p := range m.Params() {
		v := layer.Float32s(p.Value)
		for i := range v {
			v[i] += float32(rng.NormFloat64() * 0.5)
		}
	}
	x := make([]float32, 2*4*3*3)
	r := make([]float32, len(x))
	for i := range x {
		x[i] = float32(rng.NormFloat64())
		r[i] = float32(rng.NormFloat64())
	}
	loss := func() float64 {
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
	if _, err := m.Forward(layer.FromFloat32s(append([]float32(nil), x...), shape...), true); err != nil {
		t.Fatal(err)
	}
	dx, err := m.Backward(layer.FromFloat32s(r, shape...))
	if err != nil {
		t.Fatal(err)
	}
	const eps = 1e-2
	check := func(name string, got, want float64) {
		if math.Abs(got-want) > 2e-2*(1+math.Abs(want)) {
			t.Errorf("%s: analytic %v, numeric %v", name, got, want)
		}
	}
	dxs := layer.Float32s(dx)
	for i := range x {
		old := x[i]
		x[i] = old + eps
		lp := loss()
		x[i] = old - eps
		lm := loss()
		x[i] = old
		check("dx", float64(dxs[i]), (lp-lm)/(2*eps))
	}
	for _, p := range m.Params() {
		v, g := layer.Float32s(p.Value), layer.Float32s(p.Grad)
		for i := range v {
			old := v[i]
			v[i] = old + eps
			lp := loss()
			v[i] = old - eps
			lm := loss()
			v[i] = old
			check(p.Name, float64(g[i]), (lp-lm)/(2*eps))
		}
	}
}
