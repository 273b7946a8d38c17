// Package config loads OctopusDB pool configuration from YAML, with
// environment-variable overrides for the one knob most worth tuning
// per-deployment without editing a file (SPEC_FULL.md §2.2).
package config

import (
	"os"
	"strconv"

	"go.yaml.in/yaml/v2"
)

// Config carries the tunables for constructing a pool (and its ancillary
// components). Zero values are never used directly by callers; use
// Default or Load.
type Config struct {
	// MaxWorkers is the configured execution-context count (spec.md §4.F,
	// default 8).
	MaxWorkers uint32 `yaml:"max_workers"`

	// OCCMaxRetries bounds the dispatch-side attempts to claim an idle
	// worker; once they are used up the pool enqueues the task in its
	// backlog queue rather than returning a Conflict to the caller.
	OCCMaxRetries int `yaml:"occ_max_retries"`

	// DispatchQueueWarnDepth is the backlog size at which the pool logs a
	// warning (ambient observability, not a correctness knob).
	DispatchQueueWarnDepth int `yaml:"dispatch_queue_warn_depth"`

	// MetricsNamespace prefixes every Prometheus metric name (pkg/metrics).
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the spec's documented defaults: 8 workers, 3 OCC
// retries, a 100-task warn threshold, and the "octopusdb" metrics
// namespace.
func Default() Config {
	return Config{
		MaxWorkers:             8,
		OCCMaxRetries:          3,
		DispatchQueueWarnDepth: 100,
		MetricsNamespace:       "octopusdb",
	}
}

// Load reads a YAML config file, falling back to Default()'s values for
// any field the file omits, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		parsed := cfg
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, err
		}
		cfg = parsed
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's os.Getenv-based configuration
// (API_KEY, APP_ENV) for the one field most useful to override without a
// file: the worker count.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OCTOPUS_MAX_WORKERS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxWorkers = uint32(n)
		}
	}
}
