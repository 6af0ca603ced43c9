package kobject

import (
	"errors"
	"fmt"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Registry errors.
var (
	// ErrDuplicateName is returned when a sibling with the same name exists.
	ErrDuplicateName = errors.New("kobject: duplicate name")

	// ErrInvalidState is returned for operations on a node in the wrong
	// lifecycle state.
	ErrInvalidState = errors.New("kobject: invalid state")

	// ErrProjection wraps failures reported by the Projection.
	ErrProjection = errors.New("kobject: projection failed")

	// ErrNotificationTooLarge is returned when a notification exceeds the
	// variable count or buffer size limit.
	ErrNotificationTooLarge = uevent.ErrTooLarge

	// ErrDuplicateEvent is returned for a second ADD or REMOVE on a node.
	ErrDuplicateEvent = errors.New("kobject: duplicate lifecycle event")

	// ErrAllocation is returned when the registry is full.
	ErrAllocation = errors.New("kobject: allocation failed")

	// ErrInvalidName is returned for empty or reserved names.
	ErrInvalidName = errors.New("kobject: invalid name")

	// ErrCycle is returned when a move would make a node its own ancestor.
	ErrCycle = fmt.Errorf("%w: node would become its own ancestor", ErrInvalidState)

	// ErrNotFound is returned when a path does not resolve.
	ErrNotFound = errors.New("kobject: not found")
)
