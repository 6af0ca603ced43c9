// Package uevent builds, sequences and delivers lifecycle notification
// messages.
//
// # Messages
//
// A message is an ordered list of KEY=VALUE variables. The registry always
// starts a message with ACTION, DEVPATH and SUBSYSTEM, appends caller and
// group supplied variables, and finishes with SEQNUM:
//
//	ACTION=add
//	DEVPATH=/bus/dev0
//	SUBSYSTEM=dev0
//	SEQNUM=42
//
// Two fixed bounds apply to every message: at most DefaultMaxVars variables
// and at most DefaultBufferSize bytes, where each variable costs its length
// plus one NUL terminator. Exceeding either fails with ErrTooLarge and
// nothing is delivered.
//
// # Wire Format
//
// Buffer returns the variables concatenated with NUL separators.
// MarshalBinary prefixes that buffer with an "action@devpath" header, the
// layout used for broadcast listeners; ParseMessage reverses it.
//
// # Sequencing and Delivery
//
// A Sequencer hands out strictly increasing sequence numbers shared by every
// notifier that uses it. The finished message is handed to a Sink while the
// sequencer lock is held, and the Sink only queues it. Inline delivers the
// queue on a notifying goroutine once the lock is released; Dispatcher
// delivers it in order on its own goroutine. Delivery errors are reported through a
// callback and never returned to the notifying caller.
//
// Helper is a Deliverer that runs an external program once per message with
// the variables as its environment.
package uevent
