package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neurlang/musicfsl/audio"
	"github.com/neurlang/musicfsl/config"
	"github.com/neurlang/musicfsl/device"
	"github.com/neurlang/musicfsl/inference"
	"github.com/neurlang/musicfsl/parallel"
	"github.com/neurlang/musicfsl/storage"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configFile string
		checkpoint string
		support    string
		duration   float64
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:           "infer_fsl [flags] query.wav...",
		Short:         "Classify audio files against labeled support examples",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Options{ConfigFile: configFile})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("checkpoint") {
				cfg.Train.Checkpoint = checkpoint
			}
			if !cmd.Flags().Changed("duration") {
				duration = cfg.Train.Duration
			}
			if support == "" {
				return fmt.Errorf("--support is required")
			}
			logger := config.InitLogger(cfg.Logging)
			slog.SetDefault(logger)
			parallel.SetLimit(device.DefaultWorkers())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			loc, err := storage.Open(ctx, cfg.Train.Checkpoint, cfg.S3)
			if err != nil {
				return err
			}
			c, err := inference.Load(ctx, loc, duration)
			if err != nil {
				return err
			}
			if err := c.FitDir(ctx, support); err != nil {
				return err
			}
			logger.Info("prototypes", "classes", c.Classes(), "sample_rate", c.Backbone().SampleRate())

			preds, err := c.Classify(ctx, args...)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				for _, p := range preds {
					if err := enc.Encode(p); err != nil {
						return err
					}
				}
				return nil
			}
			for _, p := range preds {
				fmt.Printf("%s\t%s\t%.3f\n", p.Path, p.Label, p.Confidence)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&configFile, "config", "", "YAML configuration file")
	fl.StringVar(&checkpoint, "checkpoint", "", "checkpoint file or s3:// URI")
	fl.StringVar(&support, "support", "", "directory of <label>/*.wav support clips")
	fl.Float64Var(&duration, "duration", audio.DefaultDuration, "clip duration in seconds")
	fl.BoolVar(&asJSON, "json", false, "print one JSON object per file")
	return cmd
}
