// Package log records registry activity as a structured event trace.
//
// This package is separate from operational logging (slog). It captures
// every delivered notification, every lifecycle state change and every
// delivery failure as a machine-readable record that can be replayed with
// the objreg log commands.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.EventLog = log.NewSlogAdapter(slog.Default())
//
//	// For production: append to a binary file
//	cfg.EventLog, _ = log.NewFileLogger("/var/log/objreg/events.olog")
//
//	// Both
//	cfg.EventLog = log.NewMultiLogger(console, file)
//
// A Deliverer wraps a Logger so the event log can also act as a
// notification consumer.
//
// # Event Types
//
//   - Uevent: a sequenced notification as handed to the delivery sink
//   - StateChange: a node moving through its lifecycle
//   - Error: a failure reported on the observability channel
//
// # File Format
//
// Log files are a stream of CBOR records with integer keys, conventionally
// named with the .olog extension.
package log
