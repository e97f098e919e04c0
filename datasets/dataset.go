// Package datasets implements labeled audio clip datasets and few-shot episode sampling
package datasets

import "context"
import "fmt"
import "sort"

import "gorgonia.org/tensor"

// Clip is one labeled mono audio excerpt.
type Clip struct {
	Audio []float32
	Label string
	Path  string
}

// Dataset is a labeled collection of fixed length clips.
type Dataset interface {

	// Len returns the number of clips
	Len() int

	// Clip loads the clip at index i
	Clip(i int) (Clip, error)

	// Labels returns the distinct labels in sorted order
	Labels() []string

	// Indices returns the indices of clips with label
	Indices(label string) []int
}

// ContextDataset is a Dataset whose clip loading can be cancelled.
type ContextDataset interface {
	Dataset

	// ClipContext loads the clip at index i, giving up when ctx is done
	ClipContext(ctx context.Context, i int) (Clip, error)
}

// LoadClip loads clip i of d, through ClipContext when d supports it.
func LoadClip(ctx context.Context, d Dataset, i int) (Clip, error) {
	if cd, ok := d.(ContextDataset); ok {
		return cd.ClipContext(ctx, i)
	}
	if err := ctx.Err(); err != nil {
		return Clip{}, err
	}
	return d.Clip(i)
}

// Index groups clip labels and keeps the sorted label list. It can be embedded
// by datasets which know their labels before loading any audio.
type Index struct {
	labels  []string
	indices map[string][]int
}

// NewIndex builds an index from the label of every clip in order.
func NewIndex(labels []string) Index {
	idx := Index{indices: make(map[string][]int)}
	for i, l := range labels {
		if _, ok := idx.indices[l]; !ok {
			idx.labels = append(idx.labels, l)
		}
		idx.indices[l] = append(idx.indices[l], i)
	}
	sort.Strings(idx.labels)
	return idx
}

// Labels returns the distinct labels in sorted order.
func (idx *Index) Labels() []string {
	return idx.labels
}

// Indices returns the indices of clips with label.
func (idx *Index) Indices(label string) []int {
	return idx.indices[label]
}

// Memory is a dataset held entirely in memory.
type Memory struct {
	Index
	clips []Clip
}

// NewMemory creates an in-memory dataset. All clips must have the same length.
func NewMemory(clips []Clip) (*Memory, error) {
	labels := make([]string, len(clips))
	for i, c := range clips {
		if len(c.Audio) == 0 {
			return nil, fmt.Errorf("clip %d (%s) has no audio", i, c.Path)
		}
		if len(c.Audio) != len(clips[0].Audio) {
			return nil, fmt.Errorf("clip %d (%s) has %d samples, expected %d", i, c.Path, len(c.Audio), len(clips[0].Audio))
		}
		labels[i] = c.Label
	}
	return &Memory{Index: NewIndex(labels), clips: clips}, nil
}

// Len returns the number of clips.
func (m *Memory) Len() int {
	return len(m.clips)
}

// Clip returns the clip at index i.
func (m *Memory) Clip(i int) (Clip, error) {
	if i < 0 || i >= len(m.clips) {
		return Clip{}, fmt.Errorf("clip index %d out of range [0, %d)", i, len(m.clips))
	}
	return m.clips[i], nil
}

// Set is a batch of clips with targets relabeled to 0..len(Classes)-1.
type Set struct {
	// Audio has shape (n, 1, samples)
	Audio *tensor.Dense

	// Target is the class number of every clip
	Target []int

	// Classes names each class number
	Classes []string
}

// Len returns the number of clips in the set.
func (s *Set) Len() int {
	return len(s.Target)
}

// NewSet stacks equally long clips into a set.
func NewSet(audio [][]float32, target []int, classes []string) (*Set, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty set")
	}
	if len(audio) != len(target) {
		return nil, fmt.Errorf("%d clips but %d targets", len(audio), len(target))
	}
	samples := len(audio[0])
	data := make([]float32, 0, len(audio)*samples)
	for i, a := range audio {
		if len(a) != samples {
			return nil, fmt.Errorf("clip %d has %d samples, expected %d", i, len(a), samples)
		}
		if target[i] < 0 || target[i] >= len(classes) {
			return nil, fmt.Errorf("target %d of clip %d out of range [0, %d)", target[i], i, len(classes))
		}
		data = append(data, a...)
	}
	return &Set{
		Audio:   tensor.New(tensor.WithShape(len(audio), 1, samples), tensor.WithBacking(data)),
		Target:  target,
		Classes: classes,
	}, nil
}

// Episode is one few-shot task.
type Episode struct {
	Index   int
	Support Set
	Query   Set
}
