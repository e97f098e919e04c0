package layer

import "fmt"
import "gorgonia.org/tensor"

// Param is a learnable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value *tensor.Dense
	Grad  *tensor.Dense
}

// NewParam allocates a zero parameter of the given shape.
func NewParam(name string, shape ...int) *Param {
	return &Param{
		Name:  name,
		Value: Zeros(shape...),
		Grad:  Zeros(shape...),
	}
}

// Len returns the number of scalars in the parameter.
func (p *Param) Len() int {
	return p.Value.Shape().TotalSize()
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	g := Float32s(p.Grad)
	for i := range g {
		g[i] = 0
	}
}

// Prefix renames params by prepending prefix and a dot.
func Prefix(prefix string, params []*Param) []*Param {
	for _, p := range params {
		p.Name = prefix + "." + p.Name
	}
	return params
}

// Zeros allocates a float32 tensor of the given shape.
func Zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32))
}

// FromFloat32s wraps data as a float32 tensor of the given shape without copying.
func FromFloat32s(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Float32s returns the backing slice of a float32 tensor.
func Float32s(t *tensor.Dense) []float32 {
	return t.Data().([]float32)
}

// Dims4 checks that t is a float32 (N, C, H, W) tensor and returns its shape.
func Dims4(t *tensor.Dense) (n, c, h, w int, err error) {
	if t == nil {
		return 0, 0, 0, 0, fmt.Errorf("nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return 0, 0, 0, 0, fmt.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
	s := t.Shape()
	if len(s) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("expected a 4-d tensor (batch, channels, height, width), got shape %v", s)
	}
	return s[0], s[1], s[2], s[3], nil
}

// SameShape reports an error unless a and b have equal shapes.
func SameShape(a, b *tensor.Dense) error {
	if a == nil || b == nil {
		return fmt.Errorf("nil tensor")
	}
	if !a.Shape().Eq(b.Shape()) {
		return fmt.Errorf("shape mismatch %v != %v", a.Shape(), b.Shape())
	}
	return nil
}

// CheckShape reports an error unless t is a float32 tensor of exactly the given shape.
func CheckShape(t *tensor.Dense, shape ...int) error {
	if t == nil {
		return fmt.Errorf("nil tensor")
	}
	if t.Dtype() != tensor.Float32 {
		return fmt.Errorf("expected float32 tensor, got %v", t.Dtype())
	}
	if !t.Shape().Eq(tensor.Shape(shape)) {
		return fmt.Errorf("shape %v, want %v", t.Shape(), tensor.Shape(shape))
	}
	return nil
}
