package log

import (
	"errors"
	"io"
	"time"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Stats summarizes a stream of events.
type Stats struct {
	Total      int
	ByCategory map[Category]int
	ByAction   map[uevent.Action]int

	// FirstSeqnum and LastSeqnum bound the notification sequence numbers
	// seen. Both are zero when no notifications were read.
	FirstSeqnum uint64
	LastSeqnum  uint64

	// Gaps counts places where a notification's sequence number did not
	// directly follow the previous one from the same registry.
	Gaps int

	First time.Time
	Last  time.Time
}

// Collect reads every remaining event from r and summarizes it.
func Collect(r *Reader) (*Stats, error) {
	s := &Stats{
		ByCategory: make(map[Category]int),
		ByAction:   make(map[uevent.Action]int),
	}
	lastByRegistry := make(map[string]uint64)

	for {
		event, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}

		s.Total++
		s.ByCategory[event.Category]++
		if s.First.IsZero() || event.Timestamp.Before(s.First) {
			s.First = event.Timestamp
		}
		if event.Timestamp.After(s.Last) {
			s.Last = event.Timestamp
		}

		u := event.Uevent
		if u == nil {
			continue
		}
		s.ByAction[u.Action]++
		if s.FirstSeqnum == 0 || u.Seqnum < s.FirstSeqnum {
			s.FirstSeqnum = u.Seqnum
		}
		if u.Seqnum > s.LastSeqnum {
			s.LastSeqnum = u.Seqnum
		}
		if prev, ok := lastByRegistry[event.RegistryID]; ok && u.Seqnum != prev+1 {
			s.Gaps++
		}
		lastByRegistry[event.RegistryID] = u.Seqnum
	}
}
