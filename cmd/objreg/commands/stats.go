package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/mash-protocol/objreg/pkg/log"
	"github.com/mash-protocol/objreg/pkg/uevent"
)

// RunStats summarizes the log file.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats, err := log.Collect(reader)
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *log.Stats) {
	fmt.Fprintln(w, "=== Registry Event Log Statistics ===")
	fmt.Fprintln(w)

	if stats.Total > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.First.Format(time.RFC3339),
			stats.Last.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.Last.Sub(stats.First).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.Total)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryUevent, log.CategoryState, log.CategoryError} {
		if count := stats.ByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.ByAction) > 0 {
		fmt.Fprintln(w, "Notifications by Action:")
		for _, a := range uevent.Actions() {
			if count := stats.ByAction[a]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", a.String()+":", count)
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Seqnum Range: %d to %d\n", stats.FirstSeqnum, stats.LastSeqnum)
		if stats.Gaps > 0 {
			fmt.Fprintf(w, "Seqnum Gaps:  %d\n", stats.Gaps)
		}
	}
}
