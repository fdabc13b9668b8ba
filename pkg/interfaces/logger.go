package interfaces

// LogField is one structured key/value pair attached to a log entry.
type LogField struct {
	Key   string
	Value interface{}
}

// LoggerPort is the logging contract used across the service. The
// implementation may use Zap or any other structured logging backend.
type LoggerPort interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})

	// WithField returns a child logger with the field attached to every entry.
	WithField(key string, value interface{}) LoggerPort

	// WithStore returns a child logger scoped to one store.
	WithStore(storeID string) LoggerPort

	// Sync flushes any buffered entries.
	Sync() error
}
