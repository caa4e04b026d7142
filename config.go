// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package spi

import (
	"errors"
	"fmt"
)

// Default thread placement.
const (
	DefaultPriority  = 20
	DefaultProcessor = -2
)

// EndpointConfig describes one published name and the thread serving it.
type EndpointConfig struct {
	Name      string
	Priority  int
	Processor int
}

// Config is the static service configuration.
type Config struct {
	Endpoints []EndpointConfig
	// MaxSessions is the per-name session limit passed at registration.
	MaxSessions int
	// Capacity is each loop's handle table size, port included.
	Capacity int
}

// DefaultNames are the names the service publishes.
var DefaultNames = []string{"SPI::NOR", "SPI::CD2", "SPI::CS2", "SPI::CS3", "SPI::DEF"}

// DefaultConfig returns the stock configuration. On hardware with the
// extra core (lgr2), SPI::CD2 runs at priority 15 on processor 3.
func DefaultConfig(lgr2 bool) Config {
	cfg := Config{MaxSessions: 1, Capacity: DefaultLoopCapacity}
	for _, name := range DefaultNames {
		ep := EndpointConfig{Name: name, Priority: DefaultPriority, Processor: DefaultProcessor}
		if lgr2 && name == "SPI::CD2" {
			ep.Priority = 15
			ep.Processor = 3
		}
		cfg.Endpoints = append(cfg.Endpoints, ep)
	}
	return cfg
}

// Validate checks cfg for obvious mistakes.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("spi: no endpoints configured")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("spi: max sessions must be positive, got %d", c.MaxSessions)
	}
	if c.Capacity < 2 {
		return fmt.Errorf("spi: loop capacity must be at least 2, got %d", c.Capacity)
	}
	seen := make(map[string]struct{}, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.Name == "" {
			return errors.New("spi: empty endpoint name")
		}
		if _, dup := seen[ep.Name]; dup {
			return fmt.Errorf("spi: duplicate endpoint %q", ep.Name)
		}
		seen[ep.Name] = struct{}{}
	}
	return nil
}
