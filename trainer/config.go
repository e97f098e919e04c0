package trainer

import "fmt"

// Config holds the training hyper parameters.
type Config struct {
	SampleRate       int     `yaml:"sample_rate"`
	NWay             int     `yaml:"n_way"`
	NSupport         int     `yaml:"n_support"`
	NQuery           int     `yaml:"n_query"`
	NTrainEpisodes   int     `yaml:"n_train_episodes"`
	NValEpisodes     int     `yaml:"n_val_episodes"`
	NumWorkers       int     `yaml:"num_workers"`
	LearningRate     float64 `yaml:"learning_rate"`
	ValCheckInterval int     `yaml:"val_check_interval"`
	LogEveryNSteps   int     `yaml:"log_every_n_steps"`
	Duration         float64 `yaml:"duration"` // seconds per clip
	Seed             uint64  `yaml:"seed"`

	// Patience stops training after this many consecutive validations with
	// unchanged predictions, 0 disables
	Patience int `yaml:"patience"`

	Checkpoint string `yaml:"checkpoint"`
	Resume     bool   `yaml:"resume"`
	LogDir     string `yaml:"log_dir"`
}

// DefaultConfig returns the standard 5-way 5-shot setup.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		NWay:             5,
		NSupport:         5,
		NQuery:           20,
		NTrainEpisodes:   100000,
		NValEpisodes:     100,
		NumWorkers:       10,
		LearningRate:     1e-3,
		ValCheckInterval: 50,
		LogEveryNSteps:   1,
		Duration:         1.0,
		Seed:             0,
		Patience:         0,
		Checkpoint:       "best.json.lzw",
		LogDir:           "logs",
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.NWay < 1 {
		return fmt.Errorf("n_way must be at least 1, got %d", c.NWay)
	}
	if c.NSupport < 1 {
		return fmt.Errorf("n_support must be at least 1, got %d", c.NSupport)
	}
	if c.NQuery < 1 {
		return fmt.Errorf("n_query must be at least 1, got %d", c.NQuery)
	}
	if c.NTrainEpisodes < 0 {
		return fmt.Errorf("n_train_episodes cannot be negative, got %d", c.NTrainEpisodes)
	}
	if c.NValEpisodes < 1 {
		return fmt.Errorf("n_val_episodes must be at least 1, got %d", c.NValEpisodes)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1, got %d", c.NumWorkers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.ValCheckInterval < 1 {
		return fmt.Errorf("val_check_interval must be at least 1, got %d", c.ValCheckInterval)
	}
	if c.LogEveryNSteps < 1 {
		return fmt.Errorf("log_every_n_steps must be at least 1, got %d", c.LogEveryNSteps)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", c.Duration)
	}
	if c.Patience < 0 {
		return fmt.Errorf("patience cannot be negative, got %d", c.Patience)
	}
	return nil
}
