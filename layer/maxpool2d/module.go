package maxpool2d

import "fmt"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/parallel"

// MaxPool2D is an instantiated max pooling. Trailing rows and columns that do
// not fill a whole window are dropped.
type MaxPool2D struct {
	size int

	in     tensor.Shape
	argmax []int32
}

// Params returns nothing, pooling has no parameters.
func (*MaxPool2D) Params() []*layer.Param { return nil }

// Forward pools (N, C, H, W) into (N, C, H/size, W/size).
func (s *MaxPool2D) Forward(x *tensor.Dense, record bool) (*tensor.Dense, error) {
	n, c, h, w, err := layer.Dims4(x)
	if err != nil {
		return nil, fmt.Errorf("maxpool2d: %w", err)
	}
	oh, ow := h/s.size, w/s.size
	if oh == 0 || ow == 0 {
		return nil, fmt.Errorf("maxpool2d: input %dx%d smaller than window %d", h, w, s.size)
	}
	y := layer.Zeros(n, c, oh, ow)
	xs, ys := layer.Float32s(x), layer.Float32s(y)
	var argmax []int32
	if record {
		argmax = make([]int32, n*c*oh*ow)
	}
	parallel.ForEach(n*c, parallel.Limit(), func(plane int) {
		src := xs[plane*h*w : (plane+1)*h*w]
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				best := (oy*s.size)*w + ox*s.size
				for i := 0; i < s.size; i++ {
					for j := 0; j < s.size; j++ {
						at := (oy*s.size+i)*w + ox*s.size + j
						if src[at] > src[best] {
							best = at
						}
					}
				}
				o := plane*oh*ow + oy*ow + ox
				ys[o] = src[best]
				if record {
					argmax[o] = int32(plane*h*w + best)
				}
			}
		}
	})
	if record {
		s.in = x.Shape().Clone()
		s.argmax = argmax
	}
	return y, nil
}

// Backward routes each output gradient to the input position that won the window.
func (s *MaxPool2D) Backward(dy *tensor.Dense) (*tensor.Dense, error) {
	if s.argmax == nil {
		return nil, fmt.Errorf("maxpool2d: backward without recorded forward")
	}
	if dy == nil || dy.Shape().TotalSize() != len(s.argmax) {
		return nil, fmt.Errorf("maxpool2d: gradient does not match recorded output")
	}
	dx := layer.Zeros(s.in...)
	dxs := layer.Float32s(dx)
	for o, v := range layer.Float32s(dy) {
		dxs[s.argmax[o]] += v
	}
	s.argmax = nil
	return dx, nil
}
