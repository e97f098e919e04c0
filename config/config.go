// Package config loads the YAML configuration of the training and inference
// programs, with .env files and MUSICFSL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/neurlang/musicfsl/datasets/tinysol"
	"github.com/neurlang/musicfsl/storage"
	"github.com/neurlang/musicfsl/trainer"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUSICFSL_"

// Config represents the complete program configuration
type Config struct {
	Train   trainer.Config    `yaml:"train"`
	Dataset DatasetConfig     `yaml:"dataset"`
	S3      storage.S3Options `yaml:"s3"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Logging LoggingConfig     `yaml:"logging"`
}

// DatasetConfig selects the TinySOL root and the instruments of each split
type DatasetConfig struct {
	Root             string   `yaml:"root"`
	TrainInstruments []string `yaml:"train_instruments"`
	TestInstruments  []string `yaml:"test_instruments"`
}

// MetricsConfig contains the Prometheus listener configuration
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Train: trainer.DefaultConfig(),
		Dataset: DatasetConfig{
			Root:             "TinySOL",
			TrainInstruments: append([]string(nil), tinysol.TrainInstruments...),
			TestInstruments:  append([]string(nil), tinysol.TestInstruments...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load merges the defaults, the YAML file and the environment, then validates
// the result. A missing .env file is not an error.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MUSICFSL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATASET":      &c.Dataset.Root,
		"CHECKPOINT":   &c.Train.Checkpoint,
		"LOG_DIR":      &c.Train.LogDir,
		"LOG_LEVEL":    &c.Logging.Level,
		"LOG_FORMAT":   &c.Logging.Format,
		"LOG_OUTPUT":   &c.Logging.Output,
		"METRICS_ADDR": &c.Metrics.Addr,
		"S3_REGION":    &c.S3.Region,
		"S3_ENDPOINT":  &c.S3.Endpoint,
	}
	ints := map[string]*int{
		"SAMPLE_RATE":        &c.Train.SampleRate,
		"N_WAY":              &c.Train.NWay,
		"N_SUPPORT":          &c.Train.NSupport,
		"N_QUERY":            &c.Train.NQuery,
		"N_TRAIN_EPISODES":   &c.Train.NTrainEpisodes,
		"N_VAL_EPISODES":     &c.Train.NValEpisodes,
		"NUM_WORKERS":        &c.Train.NumWorkers,
		"VAL_CHECK_INTERVAL": &c.Train.ValCheckInterval,
		"PATIENCE":           &c.Train.Patience,
	}
	floats := map[string]*float64{
		"LEARNING_RATE": &c.Train.LearningRate,
		"DURATION":      &c.Train.Duration,
	}

	for k, p := range strs {
		if v, ok := lookup(EnvPrefix + k); ok {
			*p = v
		}
	}
	var errs []error
	for k, p := range ints {
		if v, ok := lookup(EnvPrefix + k); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
				continue
			}
			*p = n
		}
	}
	for k, p := range floats {
		if v, ok := lookup(EnvPrefix + k); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, k, err))
				continue
			}
			*p = f
		}
	}
	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		s, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Train.Seed = s
		}
	}
	if v, ok := lookup(EnvPrefix + "RESUME"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRESUME: %w", EnvPrefix, err))
		} else {
			c.Train.Resume = b
		}
	}
	return errors.Join(errs...)
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Train.Validate(); err != nil {
		return fmt.Errorf("train config: %w", err)
	}

	if err := c.Dataset.Validate(); err != nil {
		return fmt.Errorf("dataset config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates dataset configuration
func (d *DatasetConfig) Validate() error {
	if d.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}

	if len(d.TrainInstruments) == 0 {
		return fmt.Errorf("train_instruments cannot be empty")
	}

	if len(d.TestInstruments) == 0 {
		return fmt.Errorf("test_instruments cannot be empty")
	}

	seen := make(map[string]bool, len(d.TrainInstruments))
	for _, i := range d.TrainInstruments {
		seen[i] = true
	}
	for _, i := range d.TestInstruments {
		if seen[i] {
			return fmt.Errorf("instrument %q is in both splits", i)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}
