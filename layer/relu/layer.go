// Package relu implements the rectified linear activation
package relu

import "fmt"
import "math/rand/v2"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"

// ReLULayer is the configuration of a rectified linear activation
type ReLULayer struct{}

// New creates a ReLU layer
func New() *ReLULayer {
	return &ReLULayer{}
}

// Lay turns the layer into a module.
func (*ReLULayer) Lay(*rand.Rand) layer.Module {
	return &ReLU{}
}

// ReLU is an instantiated rectified linear activation
type ReLU struct {
	y *tensor.Dense
}

// Params returns nothing, ReLU has no parameters.
func (*ReLU) Params() []*layer.Param { return nil }

// Forward computes max(0, x) elementwise.
func (r *ReLU) Forward(x *tensor.Dense, record bool) (*tensor.Dense, error) {
	if x == nil || x.Dtype() != tensor.Float32 {
		return nil, fmt.Errorf("relu: expected float32 tensor")
	}
	y := layer.Zeros(x.Shape().Clone()...)
	ys := layer.Float32s(y)
	for i, v := range layer.Float32s(x) {
		if v > 0 {
			ys[i] = v
		}
	}
	if record {
		r.y = y
	}
	return y, nil
}

// Backward passes the gradient where the output was positive.
func (r *ReLU) Backward(dy *tensor.Dense) (*tensor.Dense, error) {
	if r.y == nil {
		return nil, fmt.Errorf("relu: backward without recorded forward")
	}
	if err := layer.CheckShape(dy, r.y.Shape()...); err != nil {
		return nil, fmt.Errorf("relu: gradient %w", err)
	}
	dx := layer.Zeros(dy.Shape().Clone()...)
	dxs, dys := layer.Float32s(dx), layer.Float32s(dy)
	for i, v := range layer.Float32s(r.y) {
		if v > 0 {
			dxs[i] = dys[i]
		}
	}
	r.y = nil
	return dx, nil
}
