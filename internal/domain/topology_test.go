package domain

import (
	"errors"
	"testing"
)

func TestTopology_Validate(t *testing.T) {
	tests := []struct {
		name    string
		topo    Topology
		wantErr bool
	}{
		{"valid", Topology{Procs: 4, LocalWorkers: 2, Rank: 3}, false},
		{"single", Topology{Procs: 1, LocalWorkers: 1, Rank: 0}, false},
		{"zero procs", Topology{Procs: 0, LocalWorkers: 1}, true},
		{"zero workers", Topology{Procs: 1, LocalWorkers: 0}, true},
		{"too many workers", Topology{Procs: 1, LocalWorkers: MaxLocalWorkers + 1}, true},
		{"negative rank", Topology{Procs: 2, LocalWorkers: 1, Rank: -1}, true},
		{"rank past end", Topology{Procs: 2, LocalWorkers: 1, Rank: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.topo.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestTopology_Locate(t *testing.T) {
	topo := Topology{Procs: 3, LocalWorkers: 4}

	tests := []struct {
		worker    int
		wantProc  int
		wantLocal int
	}{
		{0, 0, 0},
		{3, 0, 3},
		{4, 1, 0},
		{9, 2, 1},
		{11, 2, 3},
	}

	for _, tt := range tests {
		proc, local, err := topo.Locate(tt.worker)
		if err != nil {
			t.Fatalf("Locate(%d) error = %v", tt.worker, err)
		}
		if proc != tt.wantProc || local != tt.wantLocal {
			t.Errorf("Locate(%d) = (%d, %d), want (%d, %d)", tt.worker, proc, local, tt.wantProc, tt.wantLocal)
		}
	}

	for _, bad := range []int{-1, 12, 100} {
		if _, _, err := topo.Locate(bad); !errors.Is(err, ErrInvalidWorker) {
			t.Errorf("Locate(%d) error = %v, want ErrInvalidWorker", bad, err)
		}
	}
}

func TestTopology_AssignedPartition(t *testing.T) {
	topo := Topology{Procs: 7, LocalWorkers: 3}

	seen := make(map[int]int)
	for local := 0; local < topo.LocalWorkers; local++ {
		for _, dest := range topo.Assigned(local) {
			if prev, ok := seen[dest]; ok {
				t.Fatalf("dest %d assigned to both %d and %d", dest, prev, local)
			}
			seen[dest] = local
			if owner := topo.FlushOwner(dest); owner != local {
				t.Errorf("FlushOwner(%d) = %d, want %d", dest, owner, local)
			}
		}
	}
	if len(seen) != topo.Procs {
		t.Errorf("partition covers %d dests, want %d", len(seen), topo.Procs)
	}

	if got := topo.Assigned(3); got != nil {
		t.Errorf("Assigned(out of range) = %v, want nil", got)
	}
}

func TestReply_Err(t *testing.T) {
	if err := (Reply{Status: ReplyOK}).Err(1); err != nil {
		t.Errorf("ok reply error = %v", err)
	}

	err := Reply{Status: ReplyError, Payload: []byte("boom")}.Err(7)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("error = %T, want *RemoteError", err)
	}
	if re.Handler != 7 || re.Message != "boom" {
		t.Errorf("RemoteError = %+v", re)
	}
	if errors.Is(err, ErrUnknownHandler) {
		t.Error("handler error should not match ErrUnknownHandler")
	}

	if err := (Reply{Status: ReplyUnknownHandler}).Err(2); !errors.Is(err, ErrUnknownHandler) {
		t.Errorf("unknown handler reply error = %v, want ErrUnknownHandler", err)
	}
}
