package trainer

import "context"
import "fmt"
import "io"
import "time"

import "github.com/vbauerster/mpb/v8"
import "github.com/vbauerster/mpb/v8/decor"

import "github.com/neurlang/musicfsl/datasets"

// LoopOptions control validation cadence and early stopping.
type LoopOptions struct {
	ValCheckInterval int
	Patience         int

	// Progress receives the progress bar, nil disables it
	Progress io.Writer
}

// FitResult summarizes a training run.
type FitResult struct {
	Steps       int
	Validations int
	Last        *Result

	// Stopped is set when patience ended the run early
	Stopped bool
}

// NewLoopFunc returns the training loop. It trains on the episodes of loader
// in order, validates every ValCheckInterval steps and once at the end, and
// stops early when Patience consecutive validations repeat the previous
// prediction digest. Cancelling ctx stops the loop and returns ctx.Err()
// with the progress so far.
func NewLoopFunc(l *FewShotLearner, loader *datasets.Loader, evaluate func(ctx context.Context) (*Result, error),
	opts LoopOptions) func(ctx context.Context) (*FitResult, error) {

	return func(ctx context.Context) (*FitResult, error) {
		total := loader.Sampler.Len()
		var out = &FitResult{}

		var p *mpb.Progress
		var bar *mpb.Bar
		if opts.Progress != nil {
			p = mpb.NewWithContext(ctx, mpb.WithOutput(opts.Progress), mpb.WithWidth(64))
			bar = p.AddBar(int64(total),
				mpb.PrependDecorators(
					decor.Name("Training: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			)
			bar.SetCurrent(int64(loader.Start))
		}
		defer func() {
			if bar != nil {
				if !bar.Completed() {
					bar.Abort(false)
				}
				p.Wait()
			}
		}()

		var repeats int
		var last [32]byte
		validate := func() (stop bool, err error) {
			res, err := evaluate(ctx)
			if err != nil {
				return false, err
			}
			out.Validations++
			if out.Validations > 1 && res.Digest == last {
				repeats++
			} else {
				repeats = 0
			}
			last = res.Digest
			out.Last = res
			return opts.Patience > 0 && repeats >= opts.Patience, nil
		}

		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		validated := false
		for it := range loader.Run(lctx) {
			if it.Err != nil {
				return out, fmt.Errorf("trainer: %w", it.Err)
			}
			start := time.Now()
			if _, err := l.Step(it.Episode, TagTrain); err != nil {
				return out, err
			}
			out.Steps++
			validated = false
			if bar != nil {
				bar.EwmaIncrement(time.Since(start))
			}
			if opts.ValCheckInterval > 0 && l.GlobalStep()%opts.ValCheckInterval == 0 {
				stop, err := validate()
				if err != nil {
					return out, err
				}
				validated = true
				if stop {
					out.Stopped = true
					if l.Logger != nil {
						l.Logger.Info("validation predictions unchanged, stopping",
							"step", l.GlobalStep(), "patience", opts.Patience)
					}
					return out, nil
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !validated && out.Steps > 0 {
			if _, err := validate(); err != nil {
				return out, err
			}
		}
		return out, nil
	}
}
