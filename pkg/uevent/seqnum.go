package uevent

import (
	"strconv"
	"sync"
)

// Sequencer hands out monotonically increasing sequence numbers. One
// Sequencer is normally shared by every notifier in a process; tests create
// their own. The counter wraps at 2^64, which is accepted.
type Sequencer struct {
	mu   sync.Mutex
	last uint64
}

// NewSequencer creates a Sequencer whose next number is last+1. Pass the value
// restored from persisted state to continue a previous run.
func NewSequencer(last uint64) *Sequencer {
	return &Sequencer{last: last}
}

// Assign appends SEQNUM with the next number to env and calls commit with
// the finished message, all under the sequencer lock. The number is consumed
// only if the variable fits and commit returns nil, so committed messages
// carry strictly increasing, gapless numbers in commit order. commit must
// only queue the message; it must not deliver it.
func (s *Sequencer) Assign(action Action, env *Env, commit func(Message) error) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.last + 1
	if err := env.Add(KeySeqnum, strconv.FormatUint(next, 10)); err != nil {
		return 0, err
	}
	msg := Message{Action: action, Seqnum: next, Vars: env.Vars()}
	if commit != nil {
		if err := commit(msg); err != nil {
			return 0, err
		}
	}
	s.last = next
	return next, nil
}

// Last returns the most recently assigned number.
func (s *Sequencer) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Reset sets the most recently assigned number.
func (s *Sequencer) Reset(last uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = last
}
