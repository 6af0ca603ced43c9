// Package persistence saves registry runtime state that must survive a
// restart.
//
// The notification sequence number is never reset, so a restarted process
// continues from the value saved here. The tree snapshot is informational:
// it records what was registered at shutdown for inspection and diffing.
package persistence
