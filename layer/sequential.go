package layer

import "fmt"
import "gorgonia.org/tensor"

// Sequential chains modules, feeding each output into the next module.
type Sequential []Module

// Forward runs the modules in order.
func (s Sequential) Forward(x *tensor.Dense, record bool) (y *tensor.Dense, err error) {
	y = x
	for i, m := range s {
		y, err = m.Forward(y, record)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return y, nil
}

// Backward runs the modules in reverse order.
func (s Sequential) Backward(dy *tensor.Dense) (dx *tensor.Dense, err error) {
	dx = dy
	for i := len(s) - 1; i >= 0; i-- {
		dx, err = s[i].Backward(dx)
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i, err)
		}
	}
	return dx, nil
}

// Params concatenates the parameters of all modules.
func (s Sequential) Params() (o []*Param) {
	for _, m := range s {
		o = append(o, m.Params()...)
	}
	return
}
