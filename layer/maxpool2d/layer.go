// Package maxpool2d implements 2D max pooling with a square window and equal stride
package maxpool2d

import "fmt"
import "math/rand/v2"

import "github.com/neurlang/musicfsl/layer"

// MaxPool2DLayer is the configuration of a max pooling
type MaxPool2DLayer struct {
	size int
}

// New creates a new MaxPool2D layer pooling size x size windows
func New(size int) (o *MaxPool2DLayer, err error) {
	if size <= 0 {
		return nil, fmt.Errorf("New MaxPool2D: size %d must be positive", size)
	}
	return &MaxPool2DLayer{size: size}, nil
}

// MustNew creates a new MaxPool2D layer pooling size x size windows
func MustNew(size int) (o *MaxPool2DLayer) {
	o, err := New(size)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// Lay turns MaxPool2D layer into a module
func (i *MaxPool2DLayer) Lay(*rand.Rand) layer.Module {
	return &MaxPool2D{size: i.size}
}
