package uevent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// MaxHelperPathLen bounds the helper program path.
const MaxHelperPathLen = 256

// Variables added to the helper environment in addition to the message.
var helperEnv = []string{
	"HOME=/",
	"PATH=/sbin:/bin:/usr/sbin:/usr/bin",
}

// Helper errors.
var (
	ErrHelperPath = errors.New("uevent: invalid helper path")
	ErrHelper     = errors.New("uevent: helper failed")
)

// Helper runs an external program once per message. The program receives
// SUBSYSTEM as its only argument and the message variables, plus HOME and
// PATH, as its environment.
type Helper struct {
	path string
}

// NewHelper validates path and returns a Helper for it.
func NewHelper(path string) (*Helper, error) {
	if err := ValidateHelperPath(path); err != nil {
		return nil, err
	}
	return &Helper{path: path}, nil
}

// ValidateHelperPath checks the helper path bounds. An empty path is valid
// and disables the helper.
func ValidateHelperPath(path string) error {
	if len(path) >= MaxHelperPathLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrHelperPath, MaxHelperPathLen-1)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: contains NUL", ErrHelperPath)
	}
	return nil
}

// Path returns the helper program path.
func (h *Helper) Path() string {
	return h.path
}

// Deliver runs the helper and waits for it to exit. ctx bounds the run.
func (h *Helper) Deliver(ctx context.Context, msg Message) error {
	if h.path == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, h.path, msg.Subsystem())
	cmd.Env = append(msg.Environ(), helperEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("%w: %s seq %d: %v: %s", ErrHelper, h.path, msg.Seqnum, err, detail)
		}
		return fmt.Errorf("%w: %s seq %d: %v", ErrHelper, h.path, msg.Seqnum, err)
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ Deliverer = (*Helper)(nil)
