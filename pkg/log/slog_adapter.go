package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes registry events to an slog.Logger.
// Useful for development when you want to see events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level. Errors are written at Warn.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.RegistryID != "" {
		attrs = append(attrs, slog.String("registry_id", event.RegistryID))
	}

	switch {
	case event.Uevent != nil:
		attrs = append(attrs,
			slog.Uint64("seqnum", event.Uevent.Seqnum),
			slog.String("action", event.Uevent.Action.String()),
			slog.String("devpath", event.Uevent.DevPath),
			slog.Int("vars", len(event.Uevent.Vars)),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("path", event.StateChange.Path),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("op", event.Error.Op),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Path != "" {
			attrs = append(attrs, slog.String("path", event.Error.Path))
		}
		if event.Error.Seqnum != 0 {
			attrs = append(attrs, slog.Uint64("seqnum", event.Error.Seqnum))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "registry", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
