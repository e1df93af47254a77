package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/rpcagg/internal/cliconfig"
)

const longHelp = `
Aggregate small remote calls into batched messages.

Every process keeps one buffer per destination process. Calls are appended
to the buffer of their target and sent as one message when it fills, or when
the periodic flush finds it partially filled.

Commands:
  bench     run a job of in-process ranks over the loopback fabric
  node      run one rank of a TCP job
  capacity  show the batch capacity for given payload limits
`

var exampleUsage = strings.TrimSpace(`
  rpcagg bench --procs 8 --local-workers 4 --calls 100000
  rpcagg node --rank 0 --peers 10.0.0.1:7000,10.0.0.2:7000
  rpcagg capacity --max-request-payload 65536 --max-reply-payload 16384
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the configuration shared by every command.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
}

// resolve merges the config file and environment under the flags the user
// set on cmd, validates the result and builds the logger.
func (c *cli) resolve(cmd *cobra.Command) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}
	c.cfgPath = cfgFile

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if err := cliconfig.Load(&c.cfg, cfgFile, changed); err != nil {
		return err
	}

	logger, err := cliconfig.Logger(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	c.log = logger
	c.log.Info().Interface("config", c.cfg).Msg("configuration")
	return nil
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "rpcagg",
		Short:         "Aggregate small remote calls into batched messages",
		Long:          strings.TrimSpace(longHelp),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.rpcagg/config.toml)")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.IntVar(&c.cfg.LocalWorkers, "local-workers", c.cfg.LocalWorkers, "workers per process")
	pf.IntVar(&c.cfg.Capacity, "capacity", c.cfg.Capacity, "batch capacity, 0 for the negotiated maximum")
	pf.DurationVar(&c.cfg.FlushInterval, "flush-interval", c.cfg.FlushInterval, "how often partial batches are flushed")
	pf.IntVar(&c.cfg.MaxRequestPayload, "max-request-payload", c.cfg.MaxRequestPayload, "largest request message in bytes")
	pf.IntVar(&c.cfg.MaxReplyPayload, "max-reply-payload", c.cfg.MaxReplyPayload, "largest reply message in bytes")
	pf.IntVar(&c.cfg.Calls, "calls", c.cfg.Calls, "calls issued by each worker")

	root.AddCommand(newBenchCmd(c), newNodeCmd(c), newCapacityCmd(c))
	return root
}

func newCLI() *cli {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	c.log, _ = cliconfig.Logger("info")
	return c
}

func main() {
	c := newCLI()
	if err := newRootCmd(c).Execute(); err != nil {
		c.log.Error().Err(err).Msg("rpcagg")
		os.Exit(1)
	}
}
