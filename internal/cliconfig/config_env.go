package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "RPCAGG_"

// ApplyEnvConfig applies configuration from environment variables (RPCAGG_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if err := s.setIntFromString("procs", env("PROCS"), &cfg.Procs, false); err != nil {
		return err
	}
	if err := s.setIntFromString("local-workers", env("LOCAL_WORKERS"), &cfg.LocalWorkers, false); err != nil {
		return err
	}
	if err := s.setIntFromString("rank", env("RANK"), &cfg.Rank, true); err != nil {
		return err
	}
	if err := s.setIntFromString("capacity", env("CAPACITY"), &cfg.Capacity, true); err != nil {
		return err
	}
	if err := s.setIntFromString("max-request-payload", env("MAX_REQUEST_PAYLOAD"), &cfg.MaxRequestPayload, false); err != nil {
		return err
	}
	if err := s.setIntFromString("max-reply-payload", env("MAX_REPLY_PAYLOAD"), &cfg.MaxReplyPayload, false); err != nil {
		return err
	}
	if err := s.setIntFromString("calls", env("CALLS"), &cfg.Calls, false); err != nil {
		return err
	}

	if err := s.setDuration("flush-interval", env("FLUSH_INTERVAL"), &cfg.FlushInterval); err != nil {
		return err
	}
	if err := s.setDuration("dial-timeout", env("DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("linger", env("LINGER"), &cfg.Linger); err != nil {
		return err
	}

	s.setListFromString("peers", env("PEERS"), &cfg.Peers)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	return nil
}
