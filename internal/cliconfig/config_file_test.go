package cliconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func intPtr(i int) *int { return &i }

func TestApplyFileConfig(t *testing.T) {
	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Procs:         4,
				LocalWorkers:  8,
				Rank:          intPtr(3),
				Peers:         []string{"a:1", "b:2"},
				Capacity:      intPtr(64),
				FlushInterval: "5ms",
				DialTimeout:   "1m",
				Linger:        "2s",
				Calls:         100,
				LogLevel:      "debug",
			},
			changed: map[string]bool{},
			expected: Config{
				Procs:         4,
				LocalWorkers:  8,
				Rank:          3,
				Peers:         []string{"a:1", "b:2"},
				Capacity:      64,
				FlushInterval: 5 * time.Millisecond,
				DialTimeout:   time.Minute,
				Linger:        2 * time.Second,
				Calls:         100,
				LogLevel:      "debug",
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Procs: 9, LocalWorkers: 3},
			changed:    map[string]bool{"procs": true},
			initial:    Config{Procs: 2, LocalWorkers: 1},
			expected:   Config{Procs: 2, LocalWorkers: 3},
		},
		{
			name:       "explicit zero rank and capacity",
			fileConfig: FileConfig{Rank: intPtr(0), Capacity: intPtr(0)},
			changed:    map[string]bool{},
			initial:    Config{Rank: 5, Capacity: 10},
			expected:   Config{},
		},
		{
			name:       "missing values keep current",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			initial:    Config{Procs: 3, FlushInterval: time.Second},
			expected:   Config{Procs: 3, FlushInterval: time.Second},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{FlushInterval: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyFileConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig_Formats(t *testing.T) {
	dir := t.TempDir()

	tomlPath := filepath.Join(dir, "config.toml")
	tomlBody := `
procs = 3
local_workers = 4
rank = 0
peers = ["127.0.0.1:7001", "127.0.0.1:7002", "127.0.0.1:7003"]
flush_interval = "4ms"
`
	yamlPath := filepath.Join(dir, "config.yaml")
	yamlBody := `
procs: 3
local_workers: 4
rank: 0
peers:
  - 127.0.0.1:7001
  - 127.0.0.1:7002
  - 127.0.0.1:7003
flush_interval: 4ms
`
	for path, body := range map[string]string{tomlPath: tomlBody, yamlPath: yamlBody} {
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	for _, path := range []string{tomlPath, yamlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			fc, err := LoadFileConfig(path)
			if err != nil {
				t.Fatalf("LoadFileConfig() error = %v", err)
			}
			if fc.Procs != 3 || fc.LocalWorkers != 4 || len(fc.Peers) != 3 || fc.FlushInterval != "4ms" {
				t.Errorf("LoadFileConfig() = %+v", fc)
			}
			if fc.Rank == nil || *fc.Rank != 0 {
				t.Errorf("Rank = %v, want explicit 0", fc.Rank)
			}
		})
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file loaded without error")
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("procs = = 3"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(bad); err == nil {
		t.Error("malformed file loaded without error")
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "procs = 4\nlocal_workers = 4\ncalls = 50\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RPCAGG_LOCAL_WORKERS", "6")
	t.Setenv("RPCAGG_CALLS", "70")

	cfg := DefaultConfig()
	cfg.Calls = 90 // value given on the command line
	changed := map[string]bool{"calls": true}

	if err := Load(&cfg, path, changed); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Procs != 4 {
		t.Errorf("Procs = %d, want 4 from file", cfg.Procs)
	}
	if cfg.LocalWorkers != 6 {
		t.Errorf("LocalWorkers = %d, want 6 from env", cfg.LocalWorkers)
	}
	if cfg.Calls != 90 {
		t.Errorf("Calls = %d, want 90 from flag", cfg.Calls)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p != "" && filepath.Base(p) != "config.toml" {
		t.Errorf("DefaultConfigPath() = %s", p)
	}
}
