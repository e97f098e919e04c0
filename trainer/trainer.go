package trainer

import "context"
import "fmt"
import "io"
import "log/slog"

import "github.com/neurlang/musicfsl/datasets"
import "github.com/neurlang/musicfsl/metrics"
import "github.com/neurlang/musicfsl/protonet"
import "github.com/neurlang/musicfsl/storage"

// valSeedSalt separates the validation episode stream from the training stream.
const valSeedSalt = 0x76616c6964617465

// Trainer wires samplers, learner, validation and checkpointing for one run.
type Trainer struct {
	Config  Config
	Learner *FewShotLearner

	TrainSampler *datasets.EpisodeSampler
	ValSampler   *datasets.EpisodeSampler

	// Checkpoint receives the best weights, nil disables saving and resuming
	Checkpoint *storage.Location
	// Progress receives the progress bar, nil disables it
	Progress io.Writer

	RunID string
	Best  float64
}

// New validates cfg and prepares a run of net on the train and val datasets.
func New(cfg Config, net *protonet.PrototypicalNet, train, val datasets.Dataset) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := net.Backbone().CheckSampleRate(cfg.SampleRate); err != nil {
		return nil, err
	}
	ts, err := datasets.NewEpisodeSampler(train, cfg.NWay, cfg.NSupport, cfg.NQuery, cfg.NTrainEpisodes, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("trainer: train: %w", err)
	}
	vs, err := datasets.NewEpisodeSampler(val, cfg.NWay, cfg.NSupport, cfg.NQuery, cfg.NValEpisodes, cfg.Seed^valSeedSalt)
	if err != nil {
		return nil, fmt.Errorf("trainer: val: %w", err)
	}
	l, err := NewFewShotLearner(net, cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	l.LogEveryNSteps = cfg.LogEveryNSteps
	return &Trainer{
		Config:       cfg,
		Learner:      l,
		TrainSampler: ts,
		ValSampler:   vs,
		RunID:        NewRunID(),
	}, nil
}

// SetMetrics attaches Prometheus collectors.
func (t *Trainer) SetMetrics(m *metrics.Metrics) {
	t.Learner.Metrics = m
}

// SetLogger replaces the structured logger.
func (t *Trainer) SetLogger(logger *slog.Logger) {
	t.Learner.Logger = logger
}

// Fit resumes when configured, then trains for one pass over the training
// episodes. The metrics log is written under Config.LogDir when set.
func (t *Trainer) Fit(ctx context.Context) (*FitResult, error) {
	l := t.Learner
	c, err := Resume(ctx, l, t.Checkpoint, t.Config.Resume)
	if err != nil {
		return nil, err
	}
	if c != nil {
		t.Best = c.ValAccuracy
		if c.RunID != "" {
			t.RunID = c.RunID
		}
	}

	if t.Config.LogDir != "" {
		mlog, err := OpenMetricsLog(t.Config.LogDir, t.RunID)
		if err != nil {
			return nil, err
		}
		defer mlog.Close()
		l.Log = mlog
		defer func() { l.Log = nil }()
	}
	if l.Logger != nil {
		l.Logger.Info("training",
			"run", t.RunID,
			"step", l.GlobalStep(),
			"episodes", t.TrainSampler.Len(),
			"parameters", l.Net.Backbone().CountParameters(),
		)
	}

	var save func(context.Context, float64) error
	if t.Checkpoint != nil {
		save = NewSaveFunc(l, t.Checkpoint, t.RunID)
	}
	evaluate := NewEvaluateFunc(l, t.ValSampler, t.Config.NumWorkers, &t.Best, save)

	loader := datasets.NewLoader(t.TrainSampler, t.Config.NumWorkers)
	loader.Start = l.GlobalStep()
	loop := NewLoopFunc(l, loader, evaluate, LoopOptions{
		ValCheckInterval: t.Config.ValCheckInterval,
		Patience:         t.Config.Patience,
		Progress:         t.Progress,
	})
	return loop(ctx)
}
