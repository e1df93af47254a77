package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to keep files
// readable. Rank and Capacity are pointers so zero can be set explicitly.
type FileConfig struct {
	Procs             int      `toml:"procs" yaml:"procs"`
	LocalWorkers      int      `toml:"local_workers" yaml:"local_workers"`
	Rank              *int     `toml:"rank" yaml:"rank"`
	Peers             []string `toml:"peers" yaml:"peers"`
	Capacity          *int     `toml:"capacity" yaml:"capacity"`
	FlushInterval     string   `toml:"flush_interval" yaml:"flush_interval"`
	MaxRequestPayload int      `toml:"max_request_payload" yaml:"max_request_payload"`
	MaxReplyPayload   int      `toml:"max_reply_payload" yaml:"max_reply_payload"`
	DialTimeout       string   `toml:"dial_timeout" yaml:"dial_timeout"`
	Calls             int      `toml:"calls" yaml:"calls"`
	Linger            string   `toml:"linger" yaml:"linger"`
	LogLevel          string   `toml:"log_level" yaml:"log_level"`
}

// LoadFileConfig reads and parses a config file. Files ending in .yaml or
// .yml are YAML, everything else is TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.rpcagg/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".rpcagg", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setInt("procs", fc.Procs, &cfg.Procs)
	s.setInt("local-workers", fc.LocalWorkers, &cfg.LocalWorkers)
	s.setIntPtr("rank", fc.Rank, &cfg.Rank)
	s.setStrings("peers", fc.Peers, &cfg.Peers)
	s.setIntPtr("capacity", fc.Capacity, &cfg.Capacity)
	s.setInt("max-request-payload", fc.MaxRequestPayload, &cfg.MaxRequestPayload)
	s.setInt("max-reply-payload", fc.MaxReplyPayload, &cfg.MaxReplyPayload)
	s.setInt("calls", fc.Calls, &cfg.Calls)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	if err := s.setDuration("flush-interval", fc.FlushInterval, &cfg.FlushInterval); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("linger", fc.Linger, &cfg.Linger); err != nil {
		return err
	}
	return nil
}

// Load builds the configuration from defaults, the file at path (if it
// exists), the environment and explicitly set flags, in increasing order of
// precedence. cfg must already hold the flag values.
func Load(cfg *Config, path string, changed map[string]bool) error {
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
