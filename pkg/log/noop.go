package log

// NoopLogger discards everything. It is what rpcagg.New and the transports
// fall back to when no logger is configured, so the library stays silent
// unless the embedding program opts in.
type NoopLogger struct{}

// NewNoopLogger returns a logger that discards all output.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (NoopLogger) Debug(string, ...Field) {}
func (NoopLogger) Info(string, ...Field)  {}
func (NoopLogger) Warn(string, ...Field)  {}
func (NoopLogger) Error(string, ...Field) {}

// With returns the receiver; there is nothing to scope.
func (n NoopLogger) With(...Field) Logger { return n }
