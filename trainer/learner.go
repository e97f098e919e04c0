package trainer

import "fmt"
import "log/slog"
import "time"

import "gorgonia.org/tensor"

import "github.com/neurlang/musicfsl/datasets"
import "github.com/neurlang/musicfsl/loss"
import "github.com/neurlang/musicfsl/metrics"
import "github.com/neurlang/musicfsl/optim"
import "github.com/neurlang/musicfsl/protonet"

// Episode tags
const (
	TagTrain = "train"
	TagVal   = "val"
)

// StepOutput is the outcome of one episode.
type StepOutput struct {
	Loss        float64
	Accuracy    float64
	Predictions []int
}

// FewShotLearner runs episodes through a prototypical network and updates
// its backbone on training episodes.
type FewShotLearner struct {
	Net       *protonet.PrototypicalNet
	Optimizer *optim.Adam

	// optional sinks
	Metrics *metrics.Metrics
	Log     *MetricsLog
	Logger  *slog.Logger

	LogEveryNSteps int

	steps int
}

// NewFewShotLearner creates a learner with an Adam optimizer over the backbone parameters.
func NewFewShotLearner(net *protonet.PrototypicalNet, learningRate float64) (*FewShotLearner, error) {
	opt, err := optim.NewAdam(net.Backbone().Params(), learningRate)
	if err != nil {
		return nil, err
	}
	return &FewShotLearner{
		Net:            net,
		Optimizer:      opt,
		Logger:         slog.Default(),
		LogEveryNSteps: 1,
	}, nil
}

// GlobalStep returns the number of training steps taken.
func (l *FewShotLearner) GlobalStep() int {
	return l.steps
}

// SetGlobalStep sets the step counter, used when resuming.
func (l *FewShotLearner) SetGlobalStep(step int) {
	l.steps = step
}

// Step evaluates one episode. Episodes tagged TagTrain also update the
// backbone weights, any other tag only evaluates.
func (l *FewShotLearner) Step(ep *datasets.Episode, tag string) (*StepOutput, error) {
	if ep == nil {
		return nil, fmt.Errorf("trainer: nil episode")
	}
	start := time.Now()
	train := tag == TagTrain

	var out *StepOutput
	var err error
	if train {
		out, err = l.trainStep(ep)
	} else {
		out, err = l.evalStep(ep)
	}
	if err != nil {
		return nil, fmt.Errorf("trainer: episode %d: %w", ep.Index, err)
	}

	if l.Metrics != nil {
		l.Metrics.Observe(tag, out.Loss, out.Accuracy)
		if train {
			l.Metrics.Steps.Inc()
			l.Metrics.StepDuration.Observe(time.Since(start).Seconds())
		}
	}
	if train {
		l.steps++
		if l.LogEveryNSteps > 0 && l.steps%l.LogEveryNSteps == 0 {
			l.log(tag, out)
		}
	}
	return out, nil
}

func (l *FewShotLearner) trainStep(ep *datasets.Episode) (*StepOutput, error) {
	l.Optimizer.ZeroGrad()
	logits, err := l.Net.ForwardGrad(&ep.Support, &ep.Query)
	if err != nil {
		return nil, err
	}
	out, dlogits, err := score(logits, ep.Query.Target)
	if err != nil {
		return nil, err
	}
	if err := l.Net.Backward(dlogits); err != nil {
		return nil, err
	}
	l.Optimizer.Step()
	return out, nil
}

func (l *FewShotLearner) evalStep(ep *datasets.Episode) (*StepOutput, error) {
	logits, err := l.Net.Forward(&ep.Support, &ep.Query)
	if err != nil {
		return nil, err
	}
	out, _, err := score(logits, ep.Query.Target)
	return out, err
}

func score(logits *tensor.Dense, target []int) (*StepOutput, *tensor.Dense, error) {
	ce, dlogits, err := loss.CrossEntropy(logits, target)
	if err != nil {
		return nil, nil, err
	}
	pred, err := metrics.Predictions(logits)
	if err != nil {
		return nil, nil, err
	}
	acc, err := metrics.Accuracy(logits, target)
	if err != nil {
		return nil, nil, err
	}
	return &StepOutput{
		Loss:        ce,
		Accuracy:    acc,
		Predictions: pred,
	}, dlogits, nil
}

func (l *FewShotLearner) log(tag string, out *StepOutput) {
	if l.Logger != nil {
		l.Logger.Info("step",
			"step", l.steps,
			"loss/"+tag, out.Loss,
			"accuracy/"+tag, out.Accuracy,
		)
	}
	if l.Log != nil {
		if err := l.Log.Write(l.steps, map[string]float64{
			"loss/" + tag:     out.Loss,
			"accuracy/" + tag: out.Accuracy,
		}); err != nil && l.Logger != nil {
			l.Logger.Warn("metrics log", "error", err)
		}
	}
}
