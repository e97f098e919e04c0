// Package groupnorm implements group normalization with a per-channel affine transform
package groupnorm

import "fmt"
import "math"
import "math/rand/v2"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/parallel"

// Epsilon is added to the variance before taking the square root.
const Epsilon = 1e-5

// GroupNormLayer is the configuration of a group normalization
type GroupNormLayer struct {
	groups, channels int
}

// New creates a group normalization of channels split into groups
func New(groups, channels int) (*GroupNormLayer, error) {
	if groups <= 0 || channels <= 0 {
		return nil, fmt.Errorf("New GroupNorm: groups %d and channels %d must be positive", groups, channels)
	}
	if channels%groups != 0 {
		return nil, fmt.Errorf("New GroupNorm: channels %d not divisible by groups %d", channels, groups)
	}
	return &GroupNormLayer{groups, channels}, nil
}

// MustNew creates a group normalization of channels split into groups
func MustNew(groups, channels int) *GroupNormLayer {
	o, err := New(groups, channels)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// Lay turns the layer into a module with unit weight and zero bias.
func (l *GroupNormLayer) Lay(*rand.Rand) layer.Module {
	g := &GroupNorm{
		groups:   l.groups,
		channels: l.channels,
		weight:   layer.NewParam("weight", l.channels),
		bias:     layer.NewParam("bias", l.channels),
	}
	w := layer.Float32s(g.weight.Value)
	for i := range w {
		w[i] = 1
	}
	return g
}

// GroupNorm is an instantiated group normalization
type GroupNorm struct {
	groups, channels int
	weight, bias     *layer.Param

	xhat   *tensor.Dense
	invstd []float32
}

// Params returns weight and bias.
func (g *GroupNorm) Params() []*layer.Param {
	return []*layer.Param{g.weight, g.bias}
}

// Forward normalizes each (sample, group) slice to zero mean and unit variance
// and applies the per-channel affine transform.
func (g *GroupNorm) Forward(x *tensor.Dense, record bool) (*tensor.Dense, error) {
	n, c, h, w, err := layer.Dims4(x)
	if err != nil {
		return nil, fmt.Errorf("groupnorm: %w", err)
	}
	if c != g.channels {
		return nil, fmt.Errorf("groupnorm: expected %d channels, got %d", g.channels, c)
	}
	hw := h * w
	per := c / g.groups
	size := per * hw
	y := layer.Zeros(n, c, h, w)
	var xhat *tensor.Dense
	var xhs, invstd []float32
	if record {
		xhat = layer.Zeros(n, c, h, w)
		xhs = layer.Float32s(xhat)
		invstd = make([]float32, n*g.groups)
	}
	xs, ys := layer.Float32s(x), layer.Float32s(y)
	gamma, beta := layer.Float32s(g.weight.Value), layer.Float32s(g.bias.Value)

	parallel.ForEach(n*g.groups, parallel.Limit(), func(i int) {
		src := xs[i*size : (i+1)*size]
		var mean, variance float64
		for _, v := range src {
			mean += float64(v)
		}
		mean /= float64(size)
		for _, v := range src {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(size)
		inv := 1 / math.Sqrt(variance+Epsilon)
		dst := ys[i*size : (i+1)*size]
		c0 := (i % g.groups) * per
		for j, v := range src {
			ch := c0 + j/hw
			nv := float32((float64(v) - mean) * inv)
			if record {
				xhs[i*size+j] = nv
			}
			dst[j] = gamma[ch]*nv + beta[ch]
		}
		if record {
			invstd[i] = float32(inv)
		}
	})
	if record {
		g.xhat, g.invstd = xhat, invstd
	}
	return y, nil
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (g *GroupNorm) Backward(dy *tensor.Dense) (*tensor.Dense, error) {
	if g.xhat == nil {
		return nil, fmt.Errorf("groupnorm: backward without recorded forward")
	}
	n, c, h, w, _ := layer.Dims4(g.xhat)
	if err := layer.CheckShape(dy, n, c, h, w); err != nil {
		return nil, fmt.Errorf("groupnorm: gradient %w", err)
	}
	hw := h * w
	per := c / g.groups
	size := per * hw
	dx := layer.Zeros(n, c, h, w)
	xh, dys, dxs := layer.Float32s(g.xhat), layer.Float32s(dy), layer.Float32s(dx)
	gamma := layer.Float32s(g.weight.Value)

	// per (sample, group) partial sums of the affine gradients
	dgamma := make([]float64, n*c)
	dbeta := make([]float64, n*c)
	parallel.ForEach(n*g.groups, parallel.Limit(), func(i int) {
		base := i * size
		s := i / g.groups
		c0 := (i % g.groups) * per
		var sum, dot float64
		for j := 0; j < size; j++ {
			ch := c0 + j/hw
			d := float64(dys[base+j])
			dgamma[s*c+ch] += d * float64(xh[base+j])
			dbeta[s*c+ch] += d
			dxh := d * float64(gamma[ch])
			sum += dxh
			dot += dxh * float64(xh[base+j])
		}
		inv := float64(g.invstd[i])
		m := float64(size)
		for j := 0; j < size; j++ {
			ch := c0 + j/hw
			dxh := float64(dys[base+j]) * float64(gamma[ch])
			dxs[base+j] = float32(inv / m * (m*dxh - sum - float64(xh[base+j])*dot))
		}
	})
	gw, gb := layer.Float32s(g.weight.Grad), layer.Float32s(g.bias.Grad)
	for s := 0; s < n; s++ {
		for ch := 0; ch < c; ch++ {
			gw[ch] += float32(dgamma[s*c+ch])
			gb[ch] += float32(dbeta[s*c+ch])
		}
	}
	g.xhat, g.invstd = nil, nil
	return dx, nil
}
