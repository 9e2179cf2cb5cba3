// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration loaded from engine.yaml. Database
// and AMQP credentials stay in the environment (.env).
type Config struct {
	Poll      PollConfig        `yaml:"poll"`
	Frequency FrequencyDefaults `yaml:"frequency_defaults"`
	Log       LogConfig         `yaml:"log"`
}

type PollConfig struct {
	Interval     Duration `yaml:"interval"`
	BatchSize    int      `yaml:"batch_size"`
	Concurrency  int      `yaml:"concurrency"`
	DispatchRate float64  `yaml:"dispatch_rate"` // messages/sec handed to workers
}

// Duration parses "10s" style values from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type FrequencyDefaults struct {
	MaxPerDay   int `yaml:"max_per_day"`
	MaxPerWeek  int `yaml:"max_per_week"`
	MaxPerMonth int `yaml:"max_per_month"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Default returns the configuration used when no engine.yaml exists.
func Default() Config {
	return Config{
		Poll: PollConfig{
			Interval:     Duration(10 * time.Second),
			BatchSize:    100,
			Concurrency:  8,
			DispatchRate: 50,
		},
		Frequency: FrequencyDefaults{
			MaxPerDay:   5,
			MaxPerWeek:  20,
			MaxPerMonth: 50,
		},
		Log: LogConfig{Level: "info", Console: true},
	}
}

// Load reads path and overlays it on the defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Poll.BatchSize <= 0 {
		return fmt.Errorf("poll.batch_size must be positive")
	}
	if c.Poll.Concurrency <= 0 {
		return fmt.Errorf("poll.concurrency must be positive")
	}
	if c.Frequency.MaxPerDay <= 0 || c.Frequency.MaxPerWeek <= 0 || c.Frequency.MaxPerMonth <= 0 {
		return fmt.Errorf("frequency_defaults caps must be positive")
	}
	return nil
}
