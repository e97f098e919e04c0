// Package backbone implements the fully convolutional embedding network that
// maps mono audio clips to 512-dimensional embeddings.
package backbone

import "errors"
import "fmt"
import "math/rand/v2"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/layer/convblock"
import "github.com/neurlang/musicfsl/melspec"

// EmbeddingSize is the length of the vector produced per clip.
const EmbeddingSize = 512

// ErrInputShape is wrapped by every input validation error of Forward.
var ErrInputShape = errors.New("backbone: invalid input shape")

// ErrSampleRate reports audio recorded at a rate different from the backbone's.
var ErrSampleRate = errors.New("backbone: sample rate mismatch")

// Blocks is the five stage convolutional pyramid 1 -> 32 -> 64 -> 128 -> 256 -> 512.
var Blocks = []convblock.Config{
	{InChannels: 1, OutChannels: 32, KernelSize: 3, Stride: 1, Padding: "same", NumGroups: 8, MaxPoolSize: 2},
	{InChannels: 32, OutChannels: 64, KernelSize: 3, Stride: 1, Padding: "same", NumGroups: 16, MaxPoolSize: 2},
	{InChannels: 64, OutChannels: 128, KernelSize: 3, Stride: 1, Padding: "same", NumGroups: 32, MaxPoolSize: 2},
	{InChannels: 128, OutChannels: 256, KernelSize: 3, Stride: 1, Padding: "same", NumGroups: 64, MaxPoolSize: 2},
	{InChannels: 256, OutChannels: 512, KernelSize: 1, Stride: 1, Padding: "same", NumGroups: 128, MaxPoolSize: 4},
}

// Option customizes a Backbone.
type Option func(*options)

type options struct {
	seed   uint64
	blocks []convblock.Config
}

// WithSeed sets the seed of the parameter initialization.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithBlocks replaces the convolutional pyramid. The last block must output
// EmbeddingSize channels and pool the mel axis down to one bin.
func WithBlocks(blocks []convblock.Config) Option {
	return func(o *options) { o.blocks = blocks }
}

// Backbone produces embeddings from audio samples.
type Backbone struct {
	sampleRate int
	melspec    *melspec.MelSpectrogram
	blocks     layer.Sequential
	configs    []convblock.Config
	pool       int

	// recorded by ForwardGrad for Backward
	features tensor.Shape
}

// New creates a Backbone for audio at sampleRate Hz.
func New(sampleRate int, opts ...Option) (*Backbone, error) {
	o := options{seed: 1, blocks: Blocks}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.blocks) == 0 {
		return nil, fmt.Errorf("backbone: no convolutional blocks")
	}
	mel, err := melspec.New(melspec.DefaultConfig(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("backbone: %w", err)
	}
	b := &Backbone{
		sampleRate: sampleRate,
		melspec:    mel,
		configs:    o.blocks,
		pool:       1,
	}
	rng := rand.New(rand.NewPCG(o.seed, 0x6d757369636673))
	in := 1
	for i, cfg := range o.blocks {
		if cfg.InChannels != in {
			return nil, fmt.Errorf("backbone: block %d expects %d channels, previous block gives %d", i+1, cfg.InChannels, in)
		}
		blk, err := convblock.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("backbone: block %d: %w", i+1, err)
		}
		m := blk.Lay(rng)
		layer.Prefix(fmt.Sprintf("conv%d", i+1), m.Params())
		b.blocks = append(b.blocks, m)
		b.pool *= cfg.MaxPoolSize
		in = cfg.OutChannels
	}
	if in != EmbeddingSize {
		return nil, fmt.Errorf("backbone: last block outputs %d channels, want %d", in, EmbeddingSize)
	}
	if mel.Config().NumMels/b.pool != 1 {
		return nil, fmt.Errorf("backbone: pooling %d leaves %d mel bins, want 1", b.pool, mel.Config().NumMels/b.pool)
	}
	return b, nil
}

// MustNew is New that panics on error.
func MustNew(sampleRate int, opts ...Option) *Backbone {
	b, err := New(sampleRate, opts...)
	if err != nil {
		panic(err.Error())
	}
	return b
}

// SampleRate returns the configured sample rate in Hz.
func (b *Backbone) SampleRate() int {
	return b.sampleRate
}

// CheckSampleRate reports ErrSampleRate unless sr matches the configured
// rate. Forward cannot see the rate of its input, checking is up to callers.
func (b *Backbone) CheckSampleRate(sr int) error {
	if sr != b.sampleRate {
		return fmt.Errorf("%w: audio at %d Hz, backbone at %d Hz", ErrSampleRate, sr, b.sampleRate)
	}
	return nil
}

// Blocks returns the block configurations in use.
func (b *Backbone) Blocks() []convblock.Config {
	return append([]convblock.Config(nil), b.configs...)
}

// MinSamples returns the shortest clip that survives the pooling chain.
func (b *Backbone) MinSamples() int {
	hop := b.melspec.Config().HopLength
	return (b.pool - 1) * hop
}

// Params lists the learnable parameters in a stable order.
func (b *Backbone) Params() []*layer.Param {
	return b.blocks.Params()
}

// CountParameters returns the number of trainable scalars.
func (b *Backbone) CountParameters() (n int) {
	for _, p := range b.Params() {
		n += p.Len()
	}
	return
}

// ZeroGrad clears all parameter gradients.
func (b *Backbone) ZeroGrad() {
	for _, p := range b.Params() {
		p.ZeroGrad()
	}
}

func (b *Backbone) validate(x *tensor.Dense) error {
	if x == nil {
		return fmt.Errorf("%w: nil batch", ErrInputShape)
	}
	if x.Dims() != 3 {
		return fmt.Errorf("%w: expected a batch of audio samples shape (batch, channels, samples), got %v", ErrInputShape, x.Shape())
	}
	if x.Shape()[1] != 1 {
		return fmt.Errorf("%w: expected a mono audio signal, got %d channels", ErrInputShape, x.Shape()[1])
	}
	if x.Dtype() != tensor.Float32 {
		return fmt.Errorf("%w: expected float32 samples, got %v", ErrInputShape, x.Dtype())
	}
	if x.Shape()[0] < 1 {
		return fmt.Errorf("%w: empty batch", ErrInputShape)
	}
	if frames := b.melspec.Frames(x.Shape()[2]); frames < b.pool {
		return fmt.Errorf("%w: %d samples give %d frames, need at least %d (%d samples)",
			ErrInputShape, x.Shape()[2], frames, b.pool, b.MinSamples())
	}
	return nil
}

// Forward maps a (batch, 1, samples) waveform batch to (batch, 512) embeddings.
// It does not record activations and is safe for concurrent use.
func (b *Backbone) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	return b.forward(x, false)
}

// ForwardGrad is Forward that records activations for a following Backward.
func (b *Backbone) ForwardGrad(x *tensor.Dense) (*tensor.Dense, error) {
	return b.forward(x, true)
}

func (b *Backbone) forward(x *tensor.Dense, record bool) (*tensor.Dense, error) {
	if err := b.validate(x); err != nil {
		return nil, err
	}
	spec, err := b.melspec.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("backbone: %w", err)
	}
	feat, err := b.blocks.Forward(spec, record)
	if err != nil {
		return nil, fmt.Errorf("backbone: %w", err)
	}
	// pool over the time dimension, squeeze the mel dimension
	n, c, f, t, _ := layer.Dims4(feat)
	if f != 1 {
		return nil, fmt.Errorf("backbone: %d mel bins left after pooling, want 1", f)
	}
	y := layer.Zeros(n, c)
	fs, ys := layer.Float32s(feat), layer.Float32s(y)
	for i := range ys {
		var sum float32
		for _, v := range fs[i*t : (i+1)*t] {
			sum += v
		}
		ys[i] = sum / float32(t)
	}
	if record {
		b.features = feat.Shape().Clone()
	}
	return y, nil
}

// Backward propagates the gradient of the loss with respect to the embeddings
// of the last ForwardGrad and accumulates parameter gradients.
func (b *Backbone) Backward(dy *tensor.Dense) error {
	if b.features == nil {
		return fmt.Errorf("backbone: backward without recorded forward")
	}
	n, c, t := b.features[0], b.features[1], b.features[3]
	if err := layer.CheckShape(dy, n, c); err != nil {
		return fmt.Errorf("backbone: gradient %w", err)
	}
	dfeat := layer.Zeros(b.features...)
	dfs := layer.Float32s(dfeat)
	for i, v := range layer.Float32s(dy) {
		g := v / float32(t)
		for j := i * t; j < (i+1)*t; j++ {
			dfs[j] = g
		}
	}
	b.features = nil
	if _, err := b.blocks.Backward(dfeat); err != nil {
		return fmt.Errorf("backbone: %w", err)
	}
	return nil
}
