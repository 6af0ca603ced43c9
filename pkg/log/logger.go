package log

// Logger receives registry events. Implementations must be safe for
// concurrent use and should not block; events are logged from notification
// and delivery paths.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
