// Package inference classifies audio files with a trained backbone against
// prototypes built from a few labeled support examples.
package inference

import "context"
import "errors"
import "fmt"
import "os"
import "path/filepath"
import "sort"
import "strings"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/audio"
import "github.com/neurlang/musicfsl/backbone"
import "github.com/neurlang/musicfsl/checkpoint"
import "github.com/neurlang/musicfsl/layer"
import "github.com/neurlang/musicfsl/loss"
import "github.com/neurlang/musicfsl/parallel"
import "github.com/neurlang/musicfsl/protonet"
import "github.com/neurlang/musicfsl/storage"

// DefaultBatchSize bounds the number of clips embedded at once.
const DefaultBatchSize = 32

// ErrNoSupport reports a classifier without prototypes.
var ErrNoSupport = errors.New("inference: no support examples")

// Prediction is the classification of one file.
type Prediction struct {
	Path       string    `json:"path"`
	Label      string    `json:"label"`
	Logits     []float32 `json:"logits"`
	Confidence float64   `json:"confidence"`
}

// Classifier embeds clips of a fixed duration and assigns them to the nearest prototype.
type Classifier struct {
	backbone *backbone.Backbone
	duration float64

	BatchSize int

	classes []string
	protos  *tensor.Dense
}

// New creates a classifier for clips of duration seconds.
func New(b *backbone.Backbone, duration float64) (*Classifier, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("inference: duration must be positive, got %v", duration)
	}
	if n := audio.Samples(b.SampleRate(), duration); n < b.MinSamples() {
		return nil, fmt.Errorf("inference: %v s is %d samples, backbone needs %d: %w", duration, n, b.MinSamples(), backbone.ErrInputShape)
	}
	return &Classifier{backbone: b, duration: duration, BatchSize: DefaultBatchSize}, nil
}

// Load builds the backbone stored in the checkpoint at loc.
func Load(ctx context.Context, loc *storage.Location, duration float64) (*Classifier, error) {
	c, err := checkpoint.Load(ctx, loc.Store, loc.Path)
	if err != nil {
		return nil, err
	}
	var opts []backbone.Option
	if len(c.Blocks) > 0 {
		opts = append(opts, backbone.WithBlocks(c.Blocks))
	}
	b, err := backbone.New(c.SampleRate, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Apply(b.Params()); err != nil {
		return nil, err
	}
	return New(b, duration)
}

// Classes returns the labels of the prototypes.
func (c *Classifier) Classes() []string {
	return c.classes
}

// Backbone returns the embedding network.
func (c *Classifier) Backbone() *backbone.Backbone {
	return c.backbone
}

// SupportDir lists <dir>/<label>/*.wav by label.
func SupportDir(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	out := make(map[string][]string)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("inference: %w", err)
		}
		for _, f := range files {
			if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), ".wav") {
				out[e.Name()] = append(out[e.Name()], filepath.Join(dir, e.Name(), f.Name()))
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSupport, dir)
	}
	return out, nil
}

// FitDir builds prototypes from the support directory dir.
func (c *Classifier) FitDir(ctx context.Context, dir string) error {
	files, err := SupportDir(dir)
	if err != nil {
		return err
	}
	return c.FitFiles(ctx, files)
}

// FitFiles builds one prototype per label from the files listed under it.
func (c *Classifier) FitFiles(ctx context.Context, files map[string][]string) error {
	classes := make([]string, 0, len(files))
	for label := range files {
		classes = append(classes, label)
	}
	sort.Strings(classes)
	var paths []string
	var target []int
	for i, label := range classes {
		for _, p := range files[label] {
			paths = append(paths, p)
			target = append(target, i)
		}
	}
	if len(paths) == 0 {
		return ErrNoSupport
	}
	clips, err := c.load(ctx, paths)
	if err != nil {
		return err
	}
	return c.Fit(clips, target, classes)
}

// Fit builds prototypes from clips, target numbers the class of every clip.
func (c *Classifier) Fit(clips [][]float32, target []int, classes []string) error {
	if len(clips) == 0 {
		return ErrNoSupport
	}
	if len(clips) != len(target) {
		return fmt.Errorf("inference: %d clips with %d targets", len(clips), len(target))
	}
	emb, err := c.embed(clips)
	if err != nil {
		return err
	}
	protos, err := protonet.Prototypes(emb, target, len(classes))
	if err != nil {
		return err
	}
	c.classes = append([]string(nil), classes...)
	c.protos = protos
	return nil
}

// Classify loads and classifies every file.
func (c *Classifier) Classify(ctx context.Context, paths ...string) ([]Prediction, error) {
	clips, err := c.load(ctx, paths)
	if err != nil {
		return nil, err
	}
	out, err := c.ClassifyClips(clips)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Path = paths[i]
	}
	return out, nil
}

// ClassifyClips classifies already loaded clips.
func (c *Classifier) ClassifyClips(clips [][]float32) ([]Prediction, error) {
	if c.protos == nil {
		return nil, ErrNoSupport
	}
	if len(clips) == 0 {
		return nil, nil
	}
	emb, err := c.embed(clips)
	if err != nil {
		return nil, err
	}
	logits, err := protonet.Logits(emb, c.protos)
	if err != nil {
		return nil, err
	}
	probs, err := loss.Softmax(logits)
	if err != nil {
		return nil, err
	}
	k := len(c.classes)
	l, p := layer.Float32s(logits), layer.Float32s(probs)
	out := make([]Prediction, len(clips))
	for i := range out {
		row := l[i*k : (i+1)*k]
		best := 0
		for j, v := range row {
			if v > row[best] {
				best = j
			}
		}
		out[i] = Prediction{
			Label:      c.classes[best],
			Logits:     append([]float32(nil), row...),
			Confidence: float64(p[i*k+best]),
		}
	}
	return out, nil
}

func (c *Classifier) load(ctx context.Context, paths []string) ([][]float32, error) {
	clips := make([][]float32, len(paths))
	errs := make([]error, len(paths))
	parallel.ForEach(len(paths), parallel.Limit(), func(i int) {
		clips[i], errs[i] = audio.Load(ctx, paths[i], c.backbone.SampleRate(), c.duration)
	})
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	return clips, nil
}

// embed runs the backbone over clips in batches of BatchSize.
func (c *Classifier) embed(clips [][]float32) (*tensor.Dense, error) {
	n := len(clips)
	samples := len(clips[0])
	bs := c.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	out := make([]float32, 0, n*backbone.EmbeddingSize)
	for _, r := range parallel.Split(n, (n+bs-1)/bs) {
		batch := make([]float32, 0, (r.Hi-r.Lo)*samples)
		for i := r.Lo; i < r.Hi; i++ {
			if len(clips[i]) != samples {
				return nil, fmt.Errorf("inference: clip %d has %d samples, expected %d: %w", i, len(clips[i]), samples, backbone.ErrInputShape)
			}
			batch = append(batch, clips[i]...)
		}
		emb, err := c.backbone.Forward(layer.FromFloat32s(batch, r.Hi-r.Lo, 1, samples))
		if err != nil {
			return nil, err
		}
		out = append(out, layer.Float32s(emb)...)
	}
	return layer.FromFloat32s(out, n, backbone.EmbeddingSize), nil
}
