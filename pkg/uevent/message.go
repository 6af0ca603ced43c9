package uevent

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by ParseMessage for buffers that do not follow
// the wire layout.
var ErrMalformed = errors.New("uevent: malformed message")

// Message is a finished, sequenced notification. Vars is ordered and
// must not be modified once the message has been handed to a Sink.
type Message struct {
	Action Action
	Seqnum uint64
	Vars   []string
}

// Code returns the numeric action code (0..5).
func (m Message) Code() uint8 {
	return uint8(m.Action)
}

// Get returns the value of the first variable with the given key.
func (m Message) Get(key string) (string, bool) {
	return lookup(m.Vars, key)
}

// DevPath returns the DEVPATH variable.
func (m Message) DevPath() string {
	v, _ := m.Get(KeyDevPath)
	return v
}

// Subsystem returns the SUBSYSTEM variable.
func (m Message) Subsystem() string {
	v, _ := m.Get(KeySubsystem)
	return v
}

// Environ returns a copy of the variables, suitable as a process environment.
func (m Message) Environ() []string {
	out := make([]string, len(m.Vars))
	copy(out, m.Vars)
	return out
}

// Buffer returns all variables concatenated, each followed by a NUL byte.
func (m Message) Buffer() []byte {
	n := 0
	for _, kv := range m.Vars {
		n += len(kv) + 1
	}
	buf := make([]byte, 0, n)
	for _, kv := range m.Vars {
		buf = append(buf, kv...)
		buf = append(buf, 0)
	}
	return buf
}

// MarshalBinary encodes the message as "action@devpath\0" followed by Buffer.
func (m Message) MarshalBinary() ([]byte, error) {
	if !m.Action.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, uint8(m.Action))
	}
	header := m.Action.String() + "@" + m.DevPath()
	body := m.Buffer()
	out := make([]byte, 0, len(header)+1+len(body))
	out = append(out, header...)
	out = append(out, 0)
	out = append(out, body...)
	return out, nil
}

// ParseMessage decodes the MarshalBinary layout. The header must agree with
// the ACTION and DEVPATH variables.
func ParseMessage(data []byte) (Message, error) {
	header, body, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return Message{}, fmt.Errorf("%w: missing header terminator", ErrMalformed)
	}
	actionName, devpath, ok := strings.Cut(string(header), "@")
	if !ok {
		return Message{}, fmt.Errorf("%w: header %q", ErrMalformed, header)
	}
	action, err := ParseAction(actionName)
	if err != nil {
		return Message{}, err
	}

	var vars []string
	for len(body) > 0 {
		kv, rest, ok := bytes.Cut(body, []byte{0})
		if !ok {
			return Message{}, fmt.Errorf("%w: unterminated variable", ErrMalformed)
		}
		if !bytes.ContainsRune(kv, '=') {
			return Message{}, fmt.Errorf("%w: variable %q", ErrMalformed, kv)
		}
		vars = append(vars, string(kv))
		body = rest
	}

	m := Message{Action: action, Vars: vars}
	if v, _ := m.Get(KeyAction); v != action.String() {
		return Message{}, fmt.Errorf("%w: ACTION %q does not match header %q", ErrMalformed, v, actionName)
	}
	if m.DevPath() != devpath {
		return Message{}, fmt.Errorf("%w: DEVPATH %q does not match header %q", ErrMalformed, m.DevPath(), devpath)
	}
	if v, ok := m.Get(KeySeqnum); ok {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("%w: SEQNUM %q", ErrMalformed, v)
		}
		m.Seqnum = seq
	}
	return m, nil
}
