// Package conv2d implements a 2D float convolution layer with stride 1 and "same" padding
package conv2d

import "fmt"
import "math"
import "math/rand/v2"

import "github.com/neurlang/musicfsl/layer"

// Conv2DLayer is the configuration of a convolution
type Conv2DLayer struct {
	in, out, kernel int
}

// MustNew creates a new Conv2D layer with in and out channels and a square kernel
func MustNew(in, out, kernel int) *Conv2DLayer {
	o, err := New(in, out, kernel)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Conv2D layer with in and out channels and a square kernel
func New(in, out, kernel int) (o *Conv2DLayer, err error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("New Conv2D: channels must be positive, got %d -> %d", in, out)
	}
	if kernel <= 0 || kernel%2 == 0 {
		return nil, fmt.Errorf("New Conv2D: Kernel %d must be odd for same padding", kernel)
	}
	o = new(Conv2DLayer)
	o.in = in
	o.out = out
	o.kernel = kernel
	return
}

// Lay turns Conv2D layer into a module. Weights and bias are drawn from
// U(-1/sqrt(fan_in), 1/sqrt(fan_in)).
func (i *Conv2DLayer) Lay(rng *rand.Rand) layer.Module {
	var o Conv2D
	o.in = i.in
	o.out = i.out
	o.kernel = i.kernel
	o.weight = layer.NewParam("weight", i.out, i.in, i.kernel, i.kernel)
	o.bias = layer.NewParam("bias", i.out)
	bound := 1 / math.Sqrt(float64(i.in*i.kernel*i.kernel))
	for _, p := range []*layer.Param{o.weight, o.bias} {
		v := layer.Float32s(p.Value)
		for j := range v {
			v[j] = float32((2*rng.Float64() - 1) * bound)
		}
	}
	return &o
}
