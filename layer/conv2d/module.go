package conv2d

import "fmt"

import "gonum.org/v1/gonum/blas"
import "gonum.org/v1/gonum/blas/blas32"
import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/parallel"

// Conv2D is an instantiated convolution
type Conv2D struct {
	in, out, kernel int
	weight, bias    *layer.Param

	x *tensor.Dense
}

// Params returns weight and bias.
func (c *Conv2D) Params() []*layer.Param {
	return []*layer.Param{c.weight, c.bias}
}

func (c *Conv2D) weights() blas32.General {
	ckk := c.in * c.kernel * c.kernel
	return blas32.General{Rows: c.out, Cols: ckk, Stride: ckk, Data: layer.Float32s(c.weight.Value)}
}

// Forward convolves a (N, in, H, W) batch into (N, out, H, W).
func (c *Conv2D) Forward(x *tensor.Dense, record bool) (*tensor.Dense, error) {
	n, ch, h, w, err := layer.Dims4(x)
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}
	if ch != c.in {
		return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.in, ch)
	}
	hw := h * w
	ckk := c.in * c.kernel * c.kernel
	y := layer.Zeros(n, c.out, h, w)
	xs, ys := layer.Float32s(x), layer.Float32s(y)
	bias := layer.Float32s(c.bias.Value)
	wm := c.weights()

	parallel.Chunks(n, parallel.Limit(), func(_ int, r parallel.Range) {
		col := make([]float32, ckk*hw)
		for s := r.Lo; s < r.Hi; s++ {
			im2col(xs[s*c.in*hw:(s+1)*c.in*hw], c.in, h, w, c.kernel, col)
			out := ys[s*c.out*hw : (s+1)*c.out*hw]
			for o := 0; o < c.out; o++ {
				b := bias[o]
				row := out[o*hw : (o+1)*hw]
				for j := range row {
					row[j] = b
				}
			}
			blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, wm,
				blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: col}, 1,
				blas32.General{Rows: c.out, Cols: hw, Stride: hw, Data: out})
		}
	})
	if record {
		c.x = x
	}
	return y, nil
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (c *Conv2D) Backward(dy *tensor.Dense) (*tensor.Dense, error) {
	if c.x == nil {
		return nil, fmt.Errorf("conv2d: backward without recorded forward")
	}
	n, _, h, w, _ := layer.Dims4(c.x)
	if err := layer.CheckShape(dy, n, c.out, h, w); err != nil {
		return nil, fmt.Errorf("conv2d: gradient %w", err)
	}
	hw := h * w
	ckk := c.in * c.kernel * c.kernel
	dx := layer.Zeros(n, c.in, h, w)
	xs, dys, dxs := layer.Float32s(c.x), layer.Float32s(dy), layer.Float32s(dx)
	wm := c.weights()

	ranges := parallel.Split(n, parallel.Limit())
	dws := make([][]float32, len(ranges))
	dbs := make([][]float32, len(ranges))
	parallel.ForEach(len(ranges), len(ranges), func(chunk int) {
		r := ranges[chunk]
		dw := make([]float32, c.out*ckk)
		db := make([]float32, c.out)
		col := make([]float32, ckk*hw)
		dcol := make([]float32, ckk*hw)
		dwm := blas32.General{Rows: c.out, Cols: ckk, Stride: ckk, Data: dw}
		for s := r.Lo; s < r.Hi; s++ {
			im2col(xs[s*c.in*hw:(s+1)*c.in*hw], c.in, h, w, c.kernel, col)
			g := dys[s*c.out*hw : (s+1)*c.out*hw]
			gm := blas32.General{Rows: c.out, Cols: hw, Stride: hw, Data: g}
			for o := 0; o < c.out; o++ {
				var sum float32
				for _, v := range g[o*hw : (o+1)*hw] {
					sum += v
				}
				db[o] += sum
			}
			// dW += dY * col^T
			blas32.Gemm(blas.NoTrans, blas.Trans, 1, gm,
				blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: col}, 1, dwm)
			// dcol = W^T * dY
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, wm, gm, 0,
				blas32.General{Rows: ckk, Cols: hw, Stride: hw, Data: dcol})
			col2im(dcol, c.in, h, w, c.kernel, dxs[s*c.in*hw:(s+1)*c.in*hw])
		}
		dws[chunk] = dw
		dbs[chunk] = db
	})

	gw, gb := layer.Float32s(c.weight.Grad), layer.Float32s(c.bias.Grad)
	for chunk := range ranges {
		for i, v := range dws[chunk] {
			gw[i] += v
		}
		for i, v := range dbs[chunk] {
			gb[i] += v
		}
	}
	c.x = nil
	return dx, nil
}
