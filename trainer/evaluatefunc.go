package trainer

import "context"
import "fmt"

import "github.com/neurlang/musicfsl/checkpoint"
import "github.com/neurlang/musicfsl/datasets"
import "github.com/neurlang/musicfsl/metrics"
import "github.com/neurlang/musicfsl/parallel"
import "github.com/neurlang/musicfsl/storage"

// Result summarizes one validation run.
type Result struct {
	Loss     float64
	Accuracy float64
	Episodes int

	// Digest fingerprints every predicted class of the run. Equal digests
	// mean the network answered every query the same way.
	Digest [32]byte
}

// EvaluateFuncHasher collects predictions for the digest.
type EvaluateFuncHasher interface {
	MustPutUint16(n int, value uint16)
	Sum() [32]byte
}

// NewEvaluateFunc returns a function that runs all episodes of sampler
// without updating weights. When best is not nil and the mean accuracy beats
// it, best is raised and save is called.
func NewEvaluateFunc(l *FewShotLearner, sampler *datasets.EpisodeSampler, workers int, best *float64,
	save func(ctx context.Context, accuracy float64) error) func(ctx context.Context) (*Result, error) {

	return func(ctx context.Context) (*Result, error) {
		perEpisode := sampler.NWay * sampler.NQuery
		var h EvaluateFuncHasher = parallel.NewUint16Hasher(sampler.Len() * perEpisode)
		var lossMean, accMean metrics.Mean

		loader := datasets.NewLoader(sampler, workers)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		for it := range loader.Run(ctx) {
			if it.Err != nil {
				return nil, fmt.Errorf("trainer: validation: %w", it.Err)
			}
			out, err := l.Step(it.Episode, TagVal)
			if err != nil {
				return nil, err
			}
			for j, p := range out.Predictions {
				h.MustPutUint16(it.Episode.Index*perEpisode+j, uint16(p))
			}
			lossMean.Add(out.Loss)
			accMean.Add(out.Accuracy)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if accMean.Count() == 0 {
			return nil, fmt.Errorf("trainer: no validation episodes")
		}

		res := &Result{
			Loss:     lossMean.Value(),
			Accuracy: accMean.Value(),
			Episodes: accMean.Count(),
			Digest:   h.Sum(),
		}
		l.log(TagVal, &StepOutput{Loss: res.Loss, Accuracy: res.Accuracy})

		if best != nil && res.Accuracy > *best {
			*best = res.Accuracy
			if l.Metrics != nil {
				l.Metrics.BestAccuracy.Set(res.Accuracy)
			}
			if save != nil {
				if err := save(ctx, res.Accuracy); err != nil {
					return res, fmt.Errorf("trainer: save checkpoint: %w", err)
				}
			}
		}
		return res, nil
	}
}

// NewSaveFunc returns a save function for NewEvaluateFunc that writes the
// backbone weights and training state to loc.
func NewSaveFunc(l *FewShotLearner, loc *storage.Location, runID string) func(ctx context.Context, accuracy float64) error {
	return func(ctx context.Context, accuracy float64) error {
		b := l.Net.Backbone()
		c := &checkpoint.Checkpoint{
			SampleRate:  b.SampleRate(),
			Blocks:      b.Blocks(),
			Step:        l.GlobalStep(),
			ValAccuracy: accuracy,
			RunID:       runID,
			Params:      checkpoint.FromParams(b.Params()),
			Optimizer:   l.Optimizer.State(),
		}
		if err := checkpoint.Save(ctx, loc.Store, loc.Path, c); err != nil {
			return err
		}
		if l.Metrics != nil {
			l.Metrics.Checkpoints.Inc()
		}
		if l.Logger != nil {
			l.Logger.Info("checkpoint saved", "path", loc.Path, "step", c.Step, "accuracy/val", accuracy)
		}
		return nil
	}
}
