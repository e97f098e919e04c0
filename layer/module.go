// Package layer defines the layer and module interfaces of the embedding network
package layer

import "gorgonia.org/tensor"

// Module is an instantiated network stage holding learned parameters.
type Module interface {

	// Forward computes the output for a batch. When record is true, the
	// module remembers what Backward needs; otherwise the call is pure.
	Forward(x *tensor.Dense, record bool) (*tensor.Dense, error)

	// Backward takes the gradient of the loss with respect to the output of
	// the last recording Forward, accumulates parameter gradients and
	// returns the gradient with respect to that Forward's input.
	Backward(dy *tensor.Dense) (*tensor.Dense, error)

	// Params lists the learnable parameters in a stable order.
	Params() []*Param
}
