package cliconfig

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"RPCAGG_PROCS":          "3",
				"RPCAGG_LOCAL_WORKERS":  "5",
				"RPCAGG_RANK":           "2",
				"RPCAGG_PEERS":          "h:1, h:2 ,h:3",
				"RPCAGG_CAPACITY":       "16",
				"RPCAGG_FLUSH_INTERVAL": "1ms",
				"RPCAGG_LINGER":         "3s",
				"RPCAGG_LOG_LEVEL":      "warn",
			},
			changed: map[string]bool{},
			expected: Config{
				Procs:         3,
				LocalWorkers:  5,
				Rank:          2,
				Peers:         []string{"h:1", "h:2", "h:3"},
				Capacity:      16,
				FlushInterval: time.Millisecond,
				Linger:        3 * time.Second,
				LogLevel:      "warn",
			},
		},
		{
			name:     "rank zero is applied",
			envVars:  map[string]string{"RPCAGG_RANK": "0"},
			changed:  map[string]bool{},
			initial:  Config{Rank: 4},
			expected: Config{},
		},
		{
			name:     "zero procs is ignored",
			envVars:  map[string]string{"RPCAGG_PROCS": "0"},
			changed:  map[string]bool{},
			initial:  Config{Procs: 2},
			expected: Config{Procs: 2},
		},
		{
			name:     "respects changed flags",
			envVars:  map[string]string{"RPCAGG_PROCS": "8", "RPCAGG_CALLS": "10"},
			changed:  map[string]bool{"procs": true},
			initial:  Config{Procs: 2},
			expected: Config{Procs: 2, Calls: 10},
		},
		{
			name:    "invalid duration",
			envVars: map[string]string{"RPCAGG_FLUSH_INTERVAL": "fast"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "invalid integer",
			envVars: map[string]string{"RPCAGG_LOCAL_WORKERS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
