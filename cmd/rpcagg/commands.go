package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/rpcagg/internal/adapters/tcp"
	"github.com/bft-labs/rpcagg/internal/cliconfig"
	"github.com/bft-labs/rpcagg/internal/wire"
	"github.com/bft-labs/rpcagg/pkg/log"
	"github.com/bft-labs/rpcagg/pkg/rpcagg"
	"github.com/bft-labs/rpcagg/plugins/configwatcher"
)

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", log.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newBenchCmd(c *cli) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run all ranks in this process over the loopback fabric",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.resolve(cmd); err != nil {
				return err
			}
			logger := log.NewZerologAdapterWithLogger(c.log)
			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()

			cluster, err := rpcagg.NewLocalCluster(c.cfg.RuntimeConfig(),
				rpcagg.WithPayloadLimits(c.cfg.MaxRequestPayload, c.cfg.MaxReplyPayload),
				rpcagg.WithRuntimeOptions(rpcagg.WithLogger(logger)),
			)
			if err != nil {
				return err
			}
			h, err := registerWorkload(cluster)
			if err != nil {
				return err
			}
			if err := cluster.Start(ctx); err != nil {
				return err
			}

			results := make([]workloadResult, len(cluster.Runtimes()))
			g, gctx := errgroup.WithContext(ctx)
			for i, rt := range cluster.Runtimes() {
				i, rt := i, rt
				g.Go(func() error {
					res, err := runWorkload(gctx, rt, h, c.cfg.Calls, window)
					results[i] = res
					return err
				})
			}
			runErr := g.Wait()
			stopErr := cluster.Stop()

			var total workloadResult
			for i, rt := range cluster.Runtimes() {
				st := rt.Stats()
				res := results[i]
				total.Calls += res.Calls
				total.Failures += res.Failures
				total.Elapsed = max(total.Elapsed, res.Elapsed)
				fmt.Fprintf(cmd.OutOrStdout(), "rank %d: %d calls in %s (%.0f/s) dispatches=%d full=%d partial=%d retries=%d capacity=%d\n",
					rt.Rank(), res.Calls, res.Elapsed.Round(time.Millisecond), res.Rate(),
					st.Dispatches, st.FullDrains, st.PartialFlushes, st.Retries, st.Capacity)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total: %d calls in %s (%.0f/s)\n",
				total.Calls, total.Elapsed.Round(time.Millisecond), total.Rate())

			if runErr != nil {
				return runErr
			}
			return stopErr
		},
	}
	cmd.Flags().IntVar(&c.cfg.Procs, "procs", c.cfg.Procs, "number of in-process ranks")
	cmd.Flags().IntVar(&window, "window", 64, "calls each worker keeps in flight")
	return cmd
}

func newNodeCmd(c *cli) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run one rank of a job over TCP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.resolve(cmd); err != nil {
				return err
			}
			if len(c.cfg.Peers) == 0 {
				return fmt.Errorf("%w: node needs --peers", rpcagg.ErrInvalidConfig)
			}
			// The runtime and endpoint add the rank themselves.
			base := log.NewZerologAdapterWithLogger(c.log)
			logger := base.With(log.Int("rank", c.cfg.Rank))
			ctx, cancel := signalContext(cmd.Context(), logger)
			defer cancel()

			tr, err := tcp.New(c.cfg.TCPConfig(), base)
			if err != nil {
				return err
			}
			opts := []rpcagg.Option{rpcagg.WithTransport(tr), rpcagg.WithLogger(base)}
			if cliconfig.FileExists(c.cfgPath) {
				opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.DefaultConfig(c.cfgPath)))
			}
			rt, err := rpcagg.New(c.cfg.RuntimeConfig(), opts...)
			if err != nil {
				return err
			}
			h, err := registerWorkload(rt)
			if err != nil {
				return err
			}
			if err := rt.Start(ctx); err != nil {
				return err
			}
			logger.Info("node started", log.String("addr", tr.Addr().String()), log.Int("capacity", rt.Capacity()))

			res, runErr := runWorkload(ctx, rt, h, c.cfg.Calls, window)
			if runErr == nil {
				logger.Info("calls complete",
					log.Int("calls", res.Calls),
					log.String("elapsed", res.Elapsed.Round(time.Millisecond).String()),
					log.Float64("rate", res.Rate()))

				// Peers may still be calling into this rank.
				timer := time.NewTimer(c.cfg.Linger)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
				}
			}

			st := rt.Stats()
			logger.Info("stopping",
				log.Uint64("dispatches", st.Dispatches),
				log.Uint64("full", st.FullDrains),
				log.Uint64("partial", st.PartialFlushes),
				log.Uint64("dispatch_errors", st.DispatchErrors))
			if err := rt.Stop(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.IntVar(&c.cfg.Rank, "rank", c.cfg.Rank, "rank of this process")
	f.StringSliceVar(&c.cfg.Peers, "peers", c.cfg.Peers, "listen address of every rank, in rank order")
	f.DurationVar(&c.cfg.DialTimeout, "dial-timeout", c.cfg.DialTimeout, "how long to retry connecting to a peer")
	f.DurationVar(&c.cfg.Linger, "linger", c.cfg.Linger, "how long to keep serving peers after finishing")
	f.IntVar(&window, "window", 64, "calls each worker keeps in flight")
	return cmd
}

func newCapacityCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Show the batch capacity for the configured payload limits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.resolve(cmd); err != nil {
				return err
			}
			n := wire.Capacity(c.cfg.MaxRequestPayload, c.cfg.MaxReplyPayload)
			fmt.Fprintf(cmd.OutOrStdout(), "request payload: %d bytes (%d records)\n",
				c.cfg.MaxRequestPayload, (c.cfg.MaxRequestPayload-wire.BatchHeaderSize)/wire.RequestRecordSize)
			fmt.Fprintf(cmd.OutOrStdout(), "reply payload:   %d bytes (%d records)\n",
				c.cfg.MaxReplyPayload, (c.cfg.MaxReplyPayload-wire.BatchHeaderSize)/wire.ReplyRecordSize)
			fmt.Fprintf(cmd.OutOrStdout(), "capacity:        %d\n", n)
			if n == 0 {
				return fmt.Errorf("%w: payload limits leave no room for a record", rpcagg.ErrInvalidConfig)
			}
			return nil
		},
	}
}
