package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/rpcagg/internal/adapters/tcp"
	"github.com/bft-labs/rpcagg/internal/app"
	"github.com/bft-labs/rpcagg/internal/domain"
	"github.com/bft-labs/rpcagg/pkg/rpcagg"
)

// Config holds CLI configuration for rpcagg.
type Config struct {
	Procs        int
	LocalWorkers int
	Rank         int
	Peers        []string

	Capacity      int
	FlushInterval time.Duration

	MaxRequestPayload int
	MaxReplyPayload   int
	DialTimeout       time.Duration

	// Calls is the number of calls each worker issues in bench and node runs.
	Calls int
	// Linger is how long a node keeps serving peers after its own calls finish.
	Linger time.Duration

	LogLevel string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Procs:             2,
		LocalWorkers:      2,
		FlushInterval:     app.DefaultFlushInterval,
		MaxRequestPayload: tcp.DefaultPayloadSize,
		MaxReplyPayload:   tcp.DefaultPayloadSize,
		DialTimeout:       tcp.DefaultDialTimeout,
		Calls:             10000,
		Linger:            5 * time.Second,
		LogLevel:          "info",
	}
}

// Validate checks the configuration for errors and sets derived values.
// With peers configured, Procs is the number of peers.
func (c *Config) Validate() error {
	if len(c.Peers) > 0 {
		c.Procs = len(c.Peers)
	}
	if err := c.Topology().Validate(); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity must not be negative", domain.ErrInvalidConfig)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval must be positive", domain.ErrInvalidConfig)
	}
	if c.MaxRequestPayload <= 0 || c.MaxReplyPayload <= 0 {
		return fmt.Errorf("%w: payload limits must be positive", domain.ErrInvalidConfig)
	}
	if c.Calls < 0 {
		return fmt.Errorf("%w: calls must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// Topology returns the process layout.
func (c *Config) Topology() domain.Topology {
	return domain.Topology{Procs: c.Procs, LocalWorkers: c.LocalWorkers, Rank: c.Rank}
}

// RuntimeConfig converts c into the library configuration.
func (c *Config) RuntimeConfig() rpcagg.Config {
	return rpcagg.Config{
		Procs:         c.Procs,
		LocalWorkers:  c.LocalWorkers,
		Rank:          c.Rank,
		Capacity:      c.Capacity,
		FlushInterval: c.FlushInterval,
	}
}

// TCPConfig converts c into the TCP transport configuration.
func (c *Config) TCPConfig() tcp.Config {
	return tcp.Config{
		Rank:              c.Rank,
		Peers:             c.Peers,
		MaxRequestPayload: c.MaxRequestPayload,
		MaxReplyPayload:   c.MaxReplyPayload,
		DialTimeout:       c.DialTimeout,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int from a pointer, so zero can be configured.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings. Zero is accepted when
// allowZero is set.
func (s *configSetter) setIntFromString(flag, value string, dst *int, allowZero bool) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 || (i == 0 && !allowZero) {
		return nil
	}
	*dst = i
	return nil
}

// setListFromString splits a comma-separated list.
func (s *configSetter) setListFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
