package log

import "time"

// Logger is the structured logger threaded through the aggregation manager,
// the transports and the runtime. Components take it as a dependency and
// scope it with With, e.g. the active-message endpoint logs under the
// process rank.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every message.
	With(fields ...Field) Logger
}

// Field is one key-value pair attached to a log line. rpcagg uses a small,
// stable set of keys ("rank", "dest", "records", "worker", "error") so log
// lines from different processes of a job can be joined.
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field, used for handler names and addresses.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field. Process ranks, destinations and record counts
// are logged with it.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Uint64 creates a uint64 field for the manager and endpoint counters.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field, used for flush intervals and timeouts.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field with key "error". Dispatch failures and
// dropped frames carry it.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any creates a field with any value.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
