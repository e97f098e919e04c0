package trainer

import "context"
import "fmt"

import "github.com/neurlang/musicfsl/checkpoint"
import "github.com/neurlang/musicfsl/storage"

// Resume loads the checkpoint at loc into the learner when resume is set.
// A missing checkpoint starts a fresh run. It returns the loaded checkpoint,
// or nil when nothing was loaded.
func Resume(ctx context.Context, l *FewShotLearner, loc *storage.Location, resume bool) (*checkpoint.Checkpoint, error) {
	if !resume || loc == nil {
		return nil, nil
	}
	ok, err := loc.Store.Exists(ctx, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("trainer: resume: %w", err)
	}
	if !ok {
		if l.Logger != nil {
			l.Logger.Warn("no checkpoint to resume from, starting fresh", "path", loc.Path)
		}
		return nil, nil
	}
	c, err := checkpoint.Load(ctx, loc.Store, loc.Path)
	if err != nil {
		return nil, fmt.Errorf("trainer: resume: %w", err)
	}
	b := l.Net.Backbone()
	if err := b.CheckSampleRate(c.SampleRate); err != nil {
		return nil, fmt.Errorf("trainer: resume: %w", err)
	}
	if err := c.Apply(b.Params()); err != nil {
		return nil, fmt.Errorf("trainer: resume: %w", err)
	}
	if c.Optimizer != nil {
		if err := l.Optimizer.SetState(c.Optimizer); err != nil {
			return nil, fmt.Errorf("trainer: resume: %w", err)
		}
	} else if l.Logger != nil {
		l.Logger.Warn("checkpoint has no optimizer state, moments start from zero", "path", loc.Path)
	}
	l.SetGlobalStep(c.Step)
	if l.Logger != nil {
		l.Logger.Info("resumed", "path", loc.Path, "step", c.Step, "accuracy/val", c.ValAccuracy, "run", c.RunID)
	}
	return c, nil
}
