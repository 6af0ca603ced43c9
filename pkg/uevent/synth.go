package uevent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Synthetic event variable keys.
const (
	KeySynthUUID      = "SYNTH_UUID"
	synthArgPrefix    = "SYNTH_ARG_"
	maxSynthArgLength = 1024
)

// ErrInvalidSynthetic is returned for malformed synthetic event requests.
var ErrInvalidSynthetic = errors.New("uevent: invalid synthetic event")

// Synthetic is a parsed request to emit an event by hand, as written to a
// node's trigger file: "ACTION [UUID [KEY=VALUE ...]]".
type Synthetic struct {
	Action Action

	// UUID identifies the request. uuid.Nil when the writer did not supply one.
	UUID uuid.UUID

	// Args are the caller's KEY=VALUE arguments in order.
	Args []string
}

// ParseSynthetic parses a synthetic event request.
func ParseSynthetic(buf string) (Synthetic, error) {
	fields := strings.Fields(buf)
	if len(fields) == 0 {
		return Synthetic{}, fmt.Errorf("%w: empty request", ErrInvalidSynthetic)
	}
	action, err := ParseAction(fields[0])
	if err != nil {
		return Synthetic{}, err
	}
	s := Synthetic{Action: action}
	if len(fields) == 1 {
		return s, nil
	}

	id, err := uuid.Parse(fields[1])
	if err != nil {
		return Synthetic{}, fmt.Errorf("%w: uuid %q: %v", ErrInvalidSynthetic, fields[1], err)
	}
	s.UUID = id

	for _, arg := range fields[2:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || len(arg) > maxSynthArgLength {
			return Synthetic{}, fmt.Errorf("%w: argument %q", ErrInvalidSynthetic, arg)
		}
		for i := 0; i < len(key); i++ {
			c := key[i]
			if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
				return Synthetic{}, fmt.Errorf("%w: argument key %q", ErrInvalidSynthetic, key)
			}
		}
		s.Args = append(s.Args, key+"="+value)
	}
	return s, nil
}

// Vars returns the variables the synthetic request adds to the message:
// SYNTH_UUID (0 when absent) followed by SYNTH_ARG_KEY=VALUE per argument.
func (s Synthetic) Vars() []string {
	out := make([]string, 0, 1+len(s.Args))
	if s.UUID == uuid.Nil {
		out = append(out, KeySynthUUID+"=0")
	} else {
		out = append(out, KeySynthUUID+"="+s.UUID.String())
	}
	for _, arg := range s.Args {
		out = append(out, synthArgPrefix+arg)
	}
	return out
}
