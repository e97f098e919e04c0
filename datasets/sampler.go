package datasets

import "context"
import "errors"
import "fmt"
import "math/rand/v2"

import "github.com/neurlang/musicfsl/hash"
import "github.com/neurlang/musicfsl/parallel"

// ErrNotEnough reports a dataset too small for the requested episodes.
var ErrNotEnough = errors.New("not enough data for episode")

// EpisodeSampler draws few-shot episodes from a dataset. Episode i is fully
// determined by the dataset, the sampler settings, Seed and i.
type EpisodeSampler struct {
	dataset Dataset

	NWay      int
	NSupport  int
	NQuery    int
	NEpisodes int
	Seed      uint64
}

// Plan lists the dataset indices of an episode, class major.
type Plan struct {
	Classes []string
	Support [][]int
	Query   [][]int
}

// NewEpisodeSampler validates that every episode can be drawn from d.
func NewEpisodeSampler(d Dataset, nWay, nSupport, nQuery, nEpisodes int, seed uint64) (*EpisodeSampler, error) {
	if nWay <= 0 || nSupport <= 0 || nQuery <= 0 {
		return nil, fmt.Errorf("n_way, n_support and n_query must be positive, got %d, %d, %d", nWay, nSupport, nQuery)
	}
	if nEpisodes < 0 {
		return nil, fmt.Errorf("n_episodes must not be negative, got %d", nEpisodes)
	}
	labels := d.Labels()
	if len(labels) < nWay {
		return nil, fmt.Errorf("%w: %d classes, n_way is %d", ErrNotEnough, len(labels), nWay)
	}
	for _, l := range labels {
		if n := len(d.Indices(l)); n < nSupport+nQuery {
			return nil, fmt.Errorf("%w: class %q has %d clips, need %d", ErrNotEnough, l, n, nSupport+nQuery)
		}
	}
	return &EpisodeSampler{
		dataset:   d,
		NWay:      nWay,
		NSupport:  nSupport,
		NQuery:    nQuery,
		NEpisodes: nEpisodes,
		Seed:      seed,
	}, nil
}

// Len returns the number of episodes.
func (s *EpisodeSampler) Len() int {
	return s.NEpisodes
}

// Dataset returns the sampled dataset.
func (s *EpisodeSampler) Dataset() Dataset {
	return s.dataset
}

// sample draws k distinct elements of pool, in draw order
func sample(rng *rand.Rand, pool []int, k int) []int {
	p := append([]int(nil), pool...)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(p)-i)
		p[i], p[j] = p[j], p[i]
	}
	return p[:k]
}

// Plan draws the classes and clip indices of episode i.
func (s *EpisodeSampler) Plan(i int) (*Plan, error) {
	if i < 0 || i >= s.NEpisodes {
		return nil, fmt.Errorf("episode %d out of range [0, %d)", i, s.NEpisodes)
	}
	seed := hash.Seed(uint32(i), s.Seed)
	rng := rand.New(rand.NewPCG(seed, s.Seed))

	labels := s.dataset.Labels()
	all := make([]int, len(labels))
	for j := range all {
		all[j] = j
	}
	p := &Plan{}
	for _, c := range sample(rng, all, s.NWay) {
		label := labels[c]
		picked := sample(rng, s.dataset.Indices(label), s.NSupport+s.NQuery)
		p.Classes = append(p.Classes, label)
		p.Support = append(p.Support, picked[:s.NSupport])
		p.Query = append(p.Query, picked[s.NSupport:])
	}
	return p, nil
}

// Episode draws and loads episode i.
func (s *EpisodeSampler) Episode(ctx context.Context, i int) (*Episode, error) {
	p, err := s.Plan(i)
	if err != nil {
		return nil, err
	}
	support, err := s.load(ctx, p.Support, p.Classes)
	if err != nil {
		return nil, fmt.Errorf("episode %d support: %w", i, err)
	}
	query, err := s.load(ctx, p.Query, p.Classes)
	if err != nil {
		return nil, fmt.Errorf("episode %d query: %w", i, err)
	}
	return &Episode{Index: i, Support: *support, Query: *query}, nil
}

func (s *EpisodeSampler) load(ctx context.Context, indices [][]int, classes []string) (*Set, error) {
	var flat, target []int
	for c, idx := range indices {
		for _, j := range idx {
			flat = append(flat, j)
			target = append(target, c)
		}
	}
	audio := make([][]float32, len(flat))
	errs := make([]error, len(flat))
	parallel.ForEach(len(flat), parallel.Limit(), func(k int) {
		clip, err := LoadClip(ctx, s.dataset, flat[k])
		audio[k], errs[k] = clip.Audio, err
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return NewSet(audio, target, classes)
}
