package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mash-protocol/objreg/pkg/log"
)

// RunExport writes the events matching filter to w as JSON lines or CSV.
func RunExport(path, format string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "registry_id", "category", "seqnum", "action", "path", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var seqnum, action, path, detail string
		switch {
		case event.Uevent != nil:
			seqnum = strconv.FormatUint(event.Uevent.Seqnum, 10)
			action = event.Uevent.Action.String()
			path = event.Uevent.DevPath
			detail = strings.Join(event.Uevent.Vars, " ")
		case event.StateChange != nil:
			path = event.StateChange.Path
			detail = event.StateChange.OldState + "->" + event.StateChange.NewState
			if event.StateChange.Reason != "" {
				detail += " (" + event.StateChange.Reason + ")"
			}
		case event.Error != nil:
			path = event.Error.Path
			action = event.Error.Op
			detail = event.Error.Message
			if event.Error.Seqnum != 0 {
				seqnum = strconv.FormatUint(event.Error.Seqnum, 10)
			}
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.RegistryID,
			event.Category.String(),
			seqnum,
			action,
			path,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
