package log

import (
	"strings"
	"time"

	"github.com/mash-protocol/objreg/pkg/uevent"
)

// Event is one record of registry activity. Exactly one of the payload
// pointers is set, matching Category.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RegistryID identifies the registry instance (UUID).
	RegistryID string `cbor:"2,keyasint,omitempty"`

	// Category classifies the event.
	Category Category `cbor:"3,keyasint"`

	Uevent      *UeventEvent      `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"12,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryUevent is a sequenced notification.
	CategoryUevent Category = 0
	// CategoryState is a node lifecycle transition.
	CategoryState Category = 1
	// CategoryError is a failure on the observability channel.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryUevent:
		return "UEVENT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory maps a case-insensitive name to a Category.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(s) {
	case "uevent":
		return CategoryUevent, true
	case "state":
		return CategoryState, true
	case "error":
		return CategoryError, true
	}
	return 0, false
}

// UeventEvent captures a notification exactly as delivered.
type UeventEvent struct {
	Seqnum  uint64        `cbor:"1,keyasint"`
	Action  uevent.Action `cbor:"2,keyasint"`
	DevPath string        `cbor:"3,keyasint"`

	// Vars holds every variable in order, including the mandatory ones.
	Vars []string `cbor:"4,keyasint"`
}

// NewUeventEvent builds an Event from a delivered message.
func NewUeventEvent(registryID string, msg uevent.Message) Event {
	return Event{
		Timestamp:  time.Now(),
		RegistryID: registryID,
		Category:   CategoryUevent,
		Uevent: &UeventEvent{
			Seqnum:  msg.Seqnum,
			Action:  msg.Action,
			DevPath: msg.DevPath(),
			Vars:    msg.Environ(),
		},
	}
}

// Message reconstructs the delivered message.
func (u *UeventEvent) Message() uevent.Message {
	vars := make([]string, len(u.Vars))
	copy(vars, u.Vars)
	return uevent.Message{Action: u.Action, Seqnum: u.Seqnum, Vars: vars}
}

// StateChangeEvent captures a node lifecycle transition.
type StateChangeEvent struct {
	// Path is the node's hierarchy path at the time of the change.
	Path string `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason describes what caused the change, e.g. "rename" or "release".
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEvent captures a failure reported on the observability channel.
type ErrorEvent struct {
	// Op is the operation that failed, e.g. "deliver" or "notify".
	Op string `cbor:"1,keyasint"`

	// Path is the affected node path, if any.
	Path string `cbor:"2,keyasint,omitempty"`

	// Message is the error text.
	Message string `cbor:"3,keyasint"`

	// Seqnum is the notification sequence number, if the failure concerns
	// a sequenced message.
	Seqnum uint64 `cbor:"4,keyasint,omitempty"`
}
