// Package commands implements the objreg event log commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// FilterOptions holds the textual filter flags shared by view, filter and
// export.
type FilterOptions struct {
	RegistryID string
	Category   string
	Action     string
	Path       string
	TimeStart  string
	TimeEnd    string
}

// Build converts the flags into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		RegistryID: o.RegistryID,
		PathPrefix: o.Path,
	}

	if o.Category != "" {
		c, ok := log.ParseCategory(o.Category)
		if !ok {
			return log.Filter{}, fmt.Errorf("invalid category: %s (must be uevent, state, or error)", o.Category)
		}
		filter.Category = &c
	}

	if o.Action != "" {
		a, err := uevent.ParseAction(strings.ToLower(o.Action))
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid action: %w", err)
		}
		filter.Action = &a
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [reg:id] CATEGORY label
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	regID := shortenID(event.RegistryID)

	var label string
	switch {
	case event.Uevent != nil:
		label = fmt.Sprintf("#%d %s %s", event.Uevent.Seqnum, event.Uevent.Action, event.Uevent.DevPath)
	case event.StateChange != nil:
		label = event.StateChange.Path
	case event.Error != nil:
		label = event.Error.Op
	default:
		label = "Unknown"
	}

	fmt.Fprintf(w, "%s [reg:%s] %-6s %s\n", ts, regID, event.Category.String(), label)

	switch {
	case event.Uevent != nil:
		for _, kv := range event.Uevent.Vars {
			fmt.Fprintf(w, "  %s\n", kv)
		}
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenID returns the first 8 characters of a registry ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEvent) {
	if e.Path != "" {
		fmt.Fprintf(w, "  Path: %s\n", e.Path)
	}
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Seqnum != 0 {
		fmt.Fprintf(w, "  Seqnum: %d\n", e.Seqnum)
	}
}

// RunView prints the events of the log file that match filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}
