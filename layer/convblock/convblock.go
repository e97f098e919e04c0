// Package convblock composes a convolution, group normalization, ReLU and max pooling
package convblock

import "fmt"
import "math/rand/v2"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/layer/conv2d"
import "github.com/neurlang/musicfsl/layer/groupnorm"
import "github.com/neurlang/musicfsl/layer/maxpool2d"
import "github.com/neurlang/musicfsl/layer/relu"

// Config parameterizes one convolutional block.
type Config struct {
	InChannels  int    `json:"in_channels" yaml:"in_channels"`
	OutChannels int    `json:"out_channels" yaml:"out_channels"`
	KernelSize  int    `json:"kernel_size" yaml:"kernel_size"`
	Stride      int    `json:"stride" yaml:"stride"`
	Padding     string `json:"padding" yaml:"padding"`
	NumGroups   int    `json:"num_groups" yaml:"num_groups"`
	MaxPoolSize int    `json:"max_pool_size" yaml:"max_pool_size"`
}

// Block is a validated block configuration, usable as a layer.
type Block struct {
	cfg  Config
	conv *conv2d.Conv2DLayer
	gn   *groupnorm.GroupNormLayer
	pool *maxpool2d.MaxPool2DLayer
}

// New validates cfg. Only stride 1 with "same" padding is supported.
func New(cfg Config) (*Block, error) {
	if cfg.Stride != 1 {
		return nil, fmt.Errorf("New ConvBlock: stride %d unsupported, only 1", cfg.Stride)
	}
	if cfg.Padding != "same" {
		return nil, fmt.Errorf("New ConvBlock: padding %q unsupported, only \"same\"", cfg.Padding)
	}
	conv, err := conv2d.New(cfg.InChannels, cfg.OutChannels, cfg.KernelSize)
	if err != nil {
		return nil, err
	}
	gn, err := groupnorm.New(cfg.NumGroups, cfg.OutChannels)
	if err != nil {
		return nil, err
	}
	pool, err := maxpool2d.New(cfg.MaxPoolSize)
	if err != nil {
		return nil, err
	}
	return &Block{cfg: cfg, conv: conv, gn: gn, pool: pool}, nil
}

// MustNew is New that panics on an invalid configuration.
func MustNew(cfg Config) *Block {
	b, err := New(cfg)
	if err != nil {
		panic(err.Error())
	}
	return b
}

// Config returns the block configuration.
func (b *Block) Config() Config {
	return b.cfg
}

// Lay instantiates conv -> gn -> relu -> maxpool with parameters named
// conv.weight, conv.bias, gn.weight and gn.bias.
func (b *Block) Lay(rng *rand.Rand) layer.Module {
	conv := b.conv.Lay(rng)
	gn := b.gn.Lay(rng)
	layer.Prefix("conv", conv.Params())
	layer.Prefix("gn", gn.Params())
	return layer.Sequential{conv, gn, relu.New().Lay(rng), b.pool.Lay(rng)}
}
