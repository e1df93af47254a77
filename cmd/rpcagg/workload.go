package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/rpcagg/pkg/future"
	"github.com/bft-labs/rpcagg/pkg/rpcagg"
)

// mixArgs is the argument of the benchmark handler.
type mixArgs struct {
	Seed  uint64
	Round uint32
}

// mixResult carries the answer and the worker that computed it.
type mixResult struct {
	Value  uint64
	Worker int
}

func mix(seed uint64, round uint32) uint64 {
	x := seed ^ uint64(round)*0x9e3779b97f4a7c15
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	return x
}

// registerWorkload registers the benchmark handler. Every rank must call it
// in the same order relative to other registrations.
func registerWorkload(reg rpcagg.Registrar) (rpcagg.Handler[mixArgs, mixResult], error) {
	return rpcagg.Register(reg, "mix", func(_ context.Context, call rpcagg.CallInfo, a mixArgs) (mixResult, error) {
		return mixResult{Value: mix(a.Seed, a.Round), Worker: call.Worker}, nil
	})
}

type workloadResult struct {
	Calls    int
	Elapsed  time.Duration
	Failures int
}

func (r workloadResult) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Calls) / r.Elapsed.Seconds()
}

// runWorkload makes every local worker of rt issue calls to random targets,
// window calls at a time, and checks each answer.
func runWorkload(ctx context.Context, rt *rpcagg.Runtime, h rpcagg.Handler[mixArgs, mixResult], calls, window int) (workloadResult, error) {
	topo := rt.Topology()
	if window <= 0 {
		window = 1
	}

	failures := make([]int, topo.LocalWorkers)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for local := 0; local < topo.LocalWorkers; local++ {
		local := local
		self := topo.Rank*topo.LocalWorkers + local
		g.Go(func() error {
			rng := rand.New(rand.NewSource(int64(self) + 1))
			type pending struct {
				target int
				args   mixArgs
				f      *future.Future[mixResult]
			}
			batch := make([]pending, 0, window)

			for issued := 0; issued < calls; {
				batch = batch[:0]
				for ; issued < calls && len(batch) < window; issued++ {
					p := pending{
						target: rng.Intn(topo.Workers()),
						args:   mixArgs{Seed: rng.Uint64(), Round: uint32(issued)},
					}
					f, err := rpcagg.Call(rt, p.target, h, p.args)
					if err != nil {
						return fmt.Errorf("worker %d: %w", self, err)
					}
					p.f = f
					batch = append(batch, p)
				}
				for _, p := range batch {
					got, err := rpcagg.Await(gctx, rt, p.f)
					if err != nil {
						return fmt.Errorf("worker %d call to %d: %w", self, p.target, err)
					}
					if got.Worker != p.target || got.Value != mix(p.args.Seed, p.args.Round) {
						failures[local]++
					}
				}
			}
			return nil
		})
	}
	err := g.Wait()

	res := workloadResult{Calls: calls * topo.LocalWorkers, Elapsed: time.Since(start)}
	for _, n := range failures {
		res.Failures += n
	}
	if err == nil && res.Failures > 0 {
		err = fmt.Errorf("%d calls returned wrong answers", res.Failures)
	}
	return res, err
}
