package fleet

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultWorkers = 10

// Option configures a Fleet.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers sets the size of the broadcast worker pool. Values below one
// keep the default.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// Config holds the environment driven fleet settings.
type Config struct {
	Workers int `env:"FSM_FLEET_WORKERS" envDefault:"10"`
}

// LoadConfigFromEnv reads Config from the process environment.
func LoadConfigFromEnv() (*Config, error) {
	return loadConfig(env.Options{})
}

func loadConfig(opts env.Options) (*Config, error) {
	var cfg Config

	err := env.ParseWithOptions(&cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fleet config: %w", err)
	}

	return &cfg, nil
}

// Options converts the configuration into fleet options.
func (c *Config) Options() []Option {
	return []Option{WithWorkers(c.Workers)}
}
