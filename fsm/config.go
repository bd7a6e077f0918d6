package fsm

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the environment driven table settings.
type Config struct {
	// MaxDeferrals caps consecutive guard deferrals per delivery. Zero is unbounded.
	MaxDeferrals int `env:"FSM_MAX_DEFERRALS" envDefault:"0"`

	// Trace installs a LogSink writing to the context logger.
	Trace bool `env:"FSM_TRACE" envDefault:"false"`

	// Metrics installs a MetricsSink on the registerer given to Options.
	Metrics bool `env:"FSM_METRICS" envDefault:"false"`
}

// LoadConfigFromEnv reads Config from the process environment.
func LoadConfigFromEnv() (*Config, error) {
	return loadConfig(env.Options{})
}

func loadConfig(opts env.Options) (*Config, error) {
	var cfg Config

	err := env.ParseWithOptions(&cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fsm config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxDeferrals < 0 {
		return fmt.Errorf("%w: FSM_MAX_DEFERRALS must not be negative, got %d", ErrInvalidConfig, c.MaxDeferrals)
	}

	return nil
}

// Options converts the configuration into builder options. reg receives the
// metrics collectors when Metrics is set; with a nil reg metrics stay off.
// Sinks passed in extra are kept alongside the configured ones.
func (c *Config) Options(reg prometheus.Registerer, extra ...TraceSink) []Option {
	sinks := append([]TraceSink(nil), extra...)

	if c.Trace {
		sinks = append(sinks, NewLogSink(nil))
	}

	if c.Metrics && reg != nil {
		sinks = append(sinks, NewMetricsSink(reg))
	}

	return []Option{
		WithMaxDeferrals(c.MaxDeferrals),
		WithTraceSink(MultiSink(sinks...)),
	}
}
