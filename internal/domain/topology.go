package domain

import "fmt"

// MaxLocalWorkers bounds the workers per process; the index travels as one byte.
const MaxLocalWorkers = 256

// Topology is the static layout of processes and their local workers.
// Global worker w lives on process w / LocalWorkers.
type Topology struct {
	Procs        int
	LocalWorkers int
	Rank         int
}

// Validate checks the topology for errors.
func (t Topology) Validate() error {
	if t.Procs <= 0 {
		return fmt.Errorf("%w: procs must be positive", ErrInvalidConfig)
	}
	if t.LocalWorkers <= 0 || t.LocalWorkers > MaxLocalWorkers {
		return fmt.Errorf("%w: local workers must be in [1, %d]", ErrInvalidConfig, MaxLocalWorkers)
	}
	if t.Rank < 0 || t.Rank >= t.Procs {
		return fmt.Errorf("%w: rank %d out of range [0, %d)", ErrInvalidConfig, t.Rank, t.Procs)
	}
	return nil
}

// Workers returns the total number of workers across all processes.
func (t Topology) Workers() int {
	return t.Procs * t.LocalWorkers
}

// Locate resolves a global worker index into its process and local index.
func (t Topology) Locate(worker int) (proc, local int, err error) {
	if worker < 0 || worker >= t.Workers() {
		return 0, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidWorker, worker, t.Workers())
	}
	return worker / t.LocalWorkers, worker % t.LocalWorkers, nil
}

// FlushOwner returns the local worker that flushes the buffer for dest.
func (t Topology) FlushOwner(dest int) int {
	return dest % t.LocalWorkers
}

// Assigned returns the destinations flushed by the given local worker.
// The sets are disjoint across local workers and cover every process.
func (t Topology) Assigned(local int) []int {
	if local < 0 || local >= t.LocalWorkers {
		return nil
	}
	dests := make([]int, 0, t.Procs/t.LocalWorkers+1)
	for d := 0; d < t.Procs; d++ {
		if t.FlushOwner(d) == local {
			dests = append(dests, d)
		}
	}
	return dests
}
