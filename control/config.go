// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker-pool configuration with yaml loading. Validation mirrors the
// constructor rules of the lifecycle layer so a bad file fails before any
// engine resource is allocated.

package control

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-mq/api"
)

// PoolConfig describes a broker plus worker-pool deployment.
type PoolConfig struct {
	Frontend      string `yaml:"frontend"`        // client-facing endpoint
	Backend       string `yaml:"backend"`         // worker-facing endpoint
	Workers       int    `yaml:"workers"`         // worker goroutine count
	IOThreads     int    `yaml:"io_threads"`      // engine context I/O threads
	MaxSockets    int    `yaml:"max_sockets"`     // engine context socket limit
	RecvTimeoutMS int    `yaml:"recv_timeout_ms"` // client socket receive timeout
}

// DefaultPoolConfig returns the defaults used when a field is absent.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Frontend:   "inproc://pool-frontend",
		Backend:    "inproc://pool-backend",
		Workers:    4,
		IOThreads:  1,
		MaxSockets: 1024,
	}
}

// LoadPoolConfig reads a yaml file over the defaults and validates it.
func LoadPoolConfig(path string) (*PoolConfig, error) {
	cfg := DefaultPoolConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pool config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the same bounds the constructors enforce.
func (c *PoolConfig) Validate() error {
	if c.Frontend == "" || c.Backend == "" {
		return fmt.Errorf("%w: frontend and backend endpoints required", api.ErrInvalidArgument)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d < 1", api.ErrInvalidArgument, c.Workers)
	}
	if c.IOThreads < 0 {
		return fmt.Errorf("%w: io_threads %d < 0", api.ErrInvalidArgument, c.IOThreads)
	}
	if c.MaxSockets < 1 {
		return fmt.Errorf("%w: max_sockets %d < 1", api.ErrInvalidArgument, c.MaxSockets)
	}
	if c.RecvTimeoutMS < 0 {
		return fmt.Errorf("%w: recv_timeout_ms %d < 0", api.ErrInvalidArgument, c.RecvTimeoutMS)
	}
	return nil
}

// RecvTimeout returns the configured client receive timeout as a duration.
func (c *PoolConfig) RecvTimeout() time.Duration {
	return time.Duration(c.RecvTimeoutMS) * time.Millisecond
}
