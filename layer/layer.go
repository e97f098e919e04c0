package layer

import "math/rand/v2"

// Layer is the configuration of a network stage which can be used for instantiating a module
type Layer interface {

	// Lay creates a module with parameters drawn from rng
	Lay(rng *rand.Rand) Module
}
