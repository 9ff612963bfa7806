package storekit

// Fields carries structured context for a log entry.
type Fields map[string]any

// Logger is the minimal logging surface storekit needs. Adapters for
// concrete loggers live in subpackages (see log/zaplog); components
// default to NopLogger so logging never becomes a hard dependency.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, fields Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

var _ Logger = NopLogger{}
