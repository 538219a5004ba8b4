// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads rpdo deployment settings from YAML: the shared
// context's shape, transport limits, write-path tuning, the lock backend,
// and which wire error-code table to speak.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"code.hybscloud.com/rpdo/context"
	"code.hybscloud.com/rpdo/rpdoerr"
)

// Config is the top-level rpdo deployment configuration.
type Config struct {
	HostID     uint32        `yaml:"host_id"`
	Context    ContextConfig `yaml:"context"`
	Stream     StreamConfig  `yaml:"stream"`
	ErrorTable string        `yaml:"error_table"`
}

// ContextConfig describes the shared register bank.
type ContextConfig struct {
	RegisterCount int    `yaml:"register_count"`
	RegisterSize  int    `yaml:"register_size"`
	Flexible      bool   `yaml:"flexible"`
	Locking       string `yaml:"locking"` // "standard" or "spin_park"
}

// StreamConfig tunes the client/server write path and transport limits.
type StreamConfig struct {
	MTU               int  `yaml:"mtu"`
	ZeroCopyThreshold int  `yaml:"zero_copy_threshold"`
	AlwaysFlush       bool `yaml:"always_flush"`
}

// Default returns the configuration's zero-friction defaults, mirroring
// the constructor defaults in the context, client, and server packages.
func Default() *Config {
	return &Config{
		HostID: 1,
		Context: ContextConfig{
			RegisterCount: 8,
			RegisterSize:  256,
			Flexible:      false,
			Locking:       "standard",
		},
		Stream: StreamConfig{
			MTU:               16384,
			ZeroCopyThreshold: 4096,
			AlwaysFlush:       false,
		},
		ErrorTable: "compact",
	}
}

// Load reads and parses a YAML config file at path, applying Default()
// values for anything the file omits, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rpdo/config: reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("rpdo/config: parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("rpdo/config: invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Context.RegisterCount < 1 {
		return fmt.Errorf("context.register_count must be >= 1, got %d", c.Context.RegisterCount)
	}
	if c.Context.RegisterSize < 0 {
		return fmt.Errorf("context.register_size must be >= 0, got %d", c.Context.RegisterSize)
	}
	switch c.Context.Locking {
	case "standard", "spin_park":
	default:
		return fmt.Errorf("context.locking must be 'standard' or 'spin_park', got %q", c.Context.Locking)
	}
	if c.Stream.MTU < 1 || c.Stream.MTU > 16384 {
		return fmt.Errorf("stream.mtu must be in [1, 16384], got %d", c.Stream.MTU)
	}
	if c.Stream.ZeroCopyThreshold < 0 {
		return fmt.Errorf("stream.zero_copy_threshold must be >= 0, got %d", c.Stream.ZeroCopyThreshold)
	}
	switch c.ErrorTable {
	case "compact", "legacy":
	default:
		return fmt.Errorf("error_table must be 'compact' or 'legacy', got %q", c.ErrorTable)
	}
	return nil
}

// LockBackend maps Context.Locking to a context.LockBackend.
func (c *Config) LockBackend() context.LockBackend {
	if c.Context.Locking == "spin_park" {
		return context.SpinPark
	}
	return context.StandardMutex
}

// Codec builds an *rpdoerr.Codec for the configured ErrorTable.
func (c *Config) Codec() *rpdoerr.Codec {
	if c.ErrorTable == "legacy" {
		return rpdoerr.NewCodec(rpdoerr.LegacyTable)
	}
	return rpdoerr.NewCodec(rpdoerr.CompactTable)
}

// NewContext builds a context.Basic from this config's Context section.
func (c *Config) NewContext() *context.Basic {
	return context.NewBasic(
		c.Context.RegisterCount,
		c.Context.RegisterSize,
		c.Context.Flexible,
		context.WithLockBackend(c.LockBackend()),
	)
}
