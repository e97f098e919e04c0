package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/neurlang/musicfsl/backbone"
	"github.com/neurlang/musicfsl/config"
	"github.com/neurlang/musicfsl/datasets/tinysol"
	"github.com/neurlang/musicfsl/device"
	"github.com/neurlang/musicfsl/metrics"
	"github.com/neurlang/musicfsl/parallel"
	"github.com/neurlang/musicfsl/protonet"
	"github.com/neurlang/musicfsl/storage"
	"github.com/neurlang/musicfsl/trainer"
)

type flags struct {
	config         string
	envFile        string
	sampleRate     int
	nWay           int
	nSupport       int
	nQuery         int
	nTrainEpisodes int
	nValEpisodes   int
	numWorkers     int
	dataset        string
	checkpoint     string
	resume         bool
	metricsAddr    string
	pgo            bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "train_fsl",
		Short:         "Train a few-shot musical instrument classifier",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{ConfigFile: f.config, EnvFile: f.envFile})
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.pgo)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "YAML configuration file")
	fl.StringVar(&f.envFile, "env", "", "environment file, defaults to .env")
	fl.IntVar(&f.sampleRate, "sample_rate", 0, "sample rate in Hz")
	fl.IntVar(&f.nWay, "n_way", 0, "classes per episode")
	fl.IntVar(&f.nSupport, "n_support", 0, "support clips per class")
	fl.IntVar(&f.nQuery, "n_query", 0, "query clips per class")
	fl.IntVar(&f.nTrainEpisodes, "n_train_episodes", 0, "training episodes")
	fl.IntVar(&f.nValEpisodes, "n_val_episodes", 0, "validation episodes")
	fl.IntVar(&f.numWorkers, "num_workers", 0, "episode loading goroutines")
	fl.StringVar(&f.dataset, "dataset", "", "TinySOL root directory")
	fl.StringVar(&f.checkpoint, "checkpoint", "", "checkpoint file or s3:// URI")
	fl.BoolVar(&f.resume, "resume", false, "resume from the checkpoint")
	fl.StringVar(&f.metricsAddr, "metrics_addr", "", "serve Prometheus metrics on this address")
	fl.BoolVar(&f.pgo, "pgo", false, "write a CPU profile to default.pgo")
	return cmd
}

// apply copies explicitly set flags over cfg
func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("sample_rate") {
		cfg.Train.SampleRate = f.sampleRate
	}
	if set("n_way") {
		cfg.Train.NWay = f.nWay
	}
	if set("n_support") {
		cfg.Train.NSupport = f.nSupport
	}
	if set("n_query") {
		cfg.Train.NQuery = f.nQuery
	}
	if set("n_train_episodes") {
		cfg.Train.NTrainEpisodes = f.nTrainEpisodes
	}
	if set("n_val_episodes") {
		cfg.Train.NValEpisodes = f.nValEpisodes
	}
	if set("num_workers") {
		cfg.Train.NumWorkers = f.numWorkers
	}
	if set("dataset") {
		cfg.Dataset.Root = f.dataset
	}
	if set("checkpoint") {
		cfg.Train.Checkpoint = f.checkpoint
	}
	if set("resume") {
		cfg.Train.Resume = f.resume
	}
	if set("metrics_addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
}

func run(parent context.Context, cfg *config.Config, pgo bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := config.InitLogger(cfg.Logging)
	slog.SetDefault(logger)
	device.Log(logger)
	parallel.SetLimit(device.DefaultWorkers())

	if pgo {
		stopProfile, err := startProfile("default.pgo")
		if err != nil {
			return err
		}
		defer stopProfile()
	}

	tc := cfg.Train
	train, err := tinysol.New(ctx, cfg.Dataset.Root, cfg.Dataset.TrainInstruments, tc.SampleRate, tc.Duration)
	if err != nil {
		return fmt.Errorf("train dataset: %w", err)
	}
	val, err := tinysol.New(ctx, cfg.Dataset.Root, cfg.Dataset.TestInstruments, tc.SampleRate, tc.Duration)
	if err != nil {
		return fmt.Errorf("validation dataset: %w", err)
	}
	logger.Info("datasets", "train_clips", train.Len(), "val_clips", val.Len())

	var opts []backbone.Option
	if tc.Seed != 0 {
		opts = append(opts, backbone.WithSeed(tc.Seed))
	}
	b, err := backbone.New(tc.SampleRate, opts...)
	if err != nil {
		return err
	}

	tr, err := trainer.New(tc, protonet.New(b), train, val)
	if err != nil {
		return err
	}
	tr.SetLogger(logger)
	tr.Progress = os.Stderr

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tr.SetMetrics(metrics.NewMetrics(reg))
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
	}

	if tc.Checkpoint != "" {
		loc, err := storage.Open(ctx, tc.Checkpoint, cfg.S3)
		if err != nil {
			return err
		}
		tr.Checkpoint = loc
	}

	res, err := tr.Fit(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("training interrupted", "step", tr.Learner.GlobalStep())
		return nil
	}
	if err != nil {
		return err
	}
	args := []any{"steps", res.Steps, "validations", res.Validations, "best_accuracy", tr.Best, "stopped_early", res.Stopped}
	if res.Last != nil {
		args = append(args, "loss/val", res.Last.Loss, "accuracy/val", res.Last.Accuracy)
	}
	logger.Info("training finished", args...)
	return nil
}
