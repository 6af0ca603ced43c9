package uevent

import (
	"errors"
	"fmt"
	"strings"
)

// Action is a lifecycle event kind. The numeric value is the action code
// handed to delivery collaborators.
type Action uint8

const (
	ActionAdd Action = iota
	ActionRemove
	ActionChange
	ActionMove
	ActionOnline
	ActionOffline

	actionMax
)

// ErrUnknownAction is returned when an action string or code is not recognized.
var ErrUnknownAction = errors.New("uevent: unknown action")

var actionNames = [actionMax]string{
	ActionAdd:     "add",
	ActionRemove:  "remove",
	ActionChange:  "change",
	ActionMove:    "move",
	ActionOnline:  "online",
	ActionOffline: "offline",
}

// String returns the value used for the ACTION variable.
func (a Action) String() string {
	if a < actionMax {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Valid reports whether a is one of the six defined actions.
func (a Action) Valid() bool {
	return a < actionMax
}

// Actions returns all defined actions in code order.
func Actions() []Action {
	out := make([]Action, 0, actionMax)
	for a := ActionAdd; a < actionMax; a++ {
		out = append(out, a)
	}
	return out
}

// ParseAction maps an action name to its Action. A single trailing newline is
// tolerated so values written to a trigger file parse directly.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSuffix(s, "\n")
	for a := ActionAdd; a < actionMax; a++ {
		if actionNames[a] == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
