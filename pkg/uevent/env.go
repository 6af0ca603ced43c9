package uevent

import (
	"errors"
	"fmt"
	"strings"
)

// Message capacity bounds.
const (
	// DefaultMaxVars is the maximum number of variables in one message.
	DefaultMaxVars = 32

	// DefaultBufferSize is the maximum serialized size of one message in
	// bytes, counting a NUL terminator after every variable.
	DefaultBufferSize = 2048
)

// Standard variable keys.
const (
	KeyAction     = "ACTION"
	KeyDevPath    = "DEVPATH"
	KeySubsystem  = "SUBSYSTEM"
	KeySeqnum     = "SEQNUM"
	KeyDevPathOld = "DEVPATH_OLD"
)

// Env errors.
var (
	ErrTooLarge   = errors.New("uevent: notification too large")
	ErrInvalidVar = errors.New("uevent: invalid variable")
)

// Limits bounds the size of a message.
type Limits struct {
	MaxVars    int
	BufferSize int
}

// DefaultLimits returns the default message bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxVars:    DefaultMaxVars,
		BufferSize: DefaultBufferSize,
	}
}

// normalize fills zero fields with defaults.
func (l Limits) normalize() Limits {
	if l.MaxVars <= 0 {
		l.MaxVars = DefaultMaxVars
	}
	if l.BufferSize <= 0 {
		l.BufferSize = DefaultBufferSize
	}
	return l
}

// Env accumulates the variables of one message. Variables can only be
// appended; existing entries are never removed or reordered.
// An Env is not safe for concurrent use.
type Env struct {
	limits Limits
	vars   []string
	buflen int
}

// NewEnv creates an empty Env bounded by limits. Zero fields in limits take
// the defaults.
func NewEnv(limits Limits) *Env {
	limits = limits.normalize()
	return &Env{
		limits: limits,
		vars:   make([]string, 0, 8),
	}
}

// Add appends KEY=VALUE.
func (e *Env) Add(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return fmt.Errorf("%w: %s", err, key)
	}
	return e.push(key + "=" + value)
}

// Addf appends KEY=VALUE with a formatted value.
func (e *Env) Addf(key, format string, args ...any) error {
	return e.Add(key, fmt.Sprintf(format, args...))
}

// AddVar appends a preformatted KEY=VALUE string.
func (e *Env) AddVar(kv string) error {
	key, value, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("%w: %q has no '='", ErrInvalidVar, kv)
	}
	return e.Add(key, value)
}

// Fits reports whether KEY=VALUE could still be appended.
func (e *Env) Fits(key, value string) bool {
	return len(e.vars) < e.limits.MaxVars &&
		e.buflen+len(key)+1+len(value)+1 <= e.limits.BufferSize
}

func (e *Env) push(kv string) error {
	if len(e.vars) >= e.limits.MaxVars {
		return fmt.Errorf("%w: more than %d variables", ErrTooLarge, e.limits.MaxVars)
	}
	if e.buflen+len(kv)+1 > e.limits.BufferSize {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, e.limits.BufferSize)
	}
	e.vars = append(e.vars, kv)
	e.buflen += len(kv) + 1
	return nil
}

// Get returns the value of the first variable with the given key.
func (e *Env) Get(key string) (string, bool) {
	return lookup(e.vars, key)
}

// Len returns the number of variables.
func (e *Env) Len() int {
	return len(e.vars)
}

// Size returns the serialized size in bytes.
func (e *Env) Size() int {
	return e.buflen
}

// Limits returns the bounds of e.
func (e *Env) Limits() Limits {
	return e.limits
}

// Vars returns a copy of the variables in insertion order.
func (e *Env) Vars() []string {
	out := make([]string, len(e.vars))
	copy(out, e.vars)
	return out
}

func lookup(vars []string, key string) (string, bool) {
	for _, kv := range vars {
		k, v, _ := strings.Cut(kv, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidVar)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '=' || c <= ' ' || c > '~' {
			return fmt.Errorf("%w: bad key %q", ErrInvalidVar, key)
		}
	}
	return nil
}

// validateValue rejects NUL and anything outside 7-bit ASCII.
func validateValue(value string) error {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == 0 || c > 0x7f {
			return fmt.Errorf("%w: value byte 0x%02x at %d", ErrInvalidVar, c, i)
		}
	}
	return nil
}
