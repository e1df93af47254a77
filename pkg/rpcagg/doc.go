// Package rpcagg aggregates small remote procedure calls into batches.
//
// A job is a fixed set of processes, each running the same number of local
// workers. Calls addressed to workers of the same process are buffered
// together and sent as one message when the buffer fills, or when a periodic
// flush finds it partially filled. Results come back as futures.
//
// # Basic Usage
//
//	cluster, err := rpcagg.NewLocalCluster(rpcagg.Config{Procs: 4, LocalWorkers: 2})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	add, err := rpcagg.Register(cluster, "add",
//	    func(ctx context.Context, call rpcagg.CallInfo, args [2]int) (int, error) {
//	        return args[0] + args[1], nil
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cluster.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cluster.Stop()
//
//	rt := cluster.Runtime(0)
//	f, err := rpcagg.Call(rt, 5, add, [2]int{1, 2})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sum, err := rpcagg.Await(ctx, rt, f)
//
// # Handlers
//
// Handlers are identified on the wire by registration order. Every process
// must register the same handlers in the same order. Arguments and results
// are encoded with msgpack and must fit in one call record.
//
// # Capacity
//
// The batch capacity starts at the largest value the transport's payload
// limits allow. [Runtime.SetCapacity] can only lower it and must be called
// while no calls are buffered.
//
// # Transports
//
// A single-process runtime needs no transport. Multi-process jobs pass one
// with [WithTransport]; the cmd/rpcagg binary uses a TCP transport, and
// [NewLocalCluster] connects its runtimes in memory.
//
// # Lifecycle States
//
// A Runtime is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. Use [Runtime.Status] to query it.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package rpcagg
