// Package command defines the identity-bearing units of work exchanged between
// the client runtime, the remote workflow service, and the co-located host
// process that replays workflow code.
//
// Every Command carries an ID assigned at construction. The ID correlates a
// Request with its eventual response and is the target of Cancel requests.
// Requests are immutable: the only supported change is replacing the Header,
// which produces a new value sharing the same ID.
package command

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidArgument reports a malformed command construction.
var ErrInvalidArgument = errors.New("command: invalid argument")

// ID identifies a command. IDs are unique within a process.
type ID int64

// Command is implemented by every request and response.
type Command interface {
	ID() ID
}

var lastID atomic.Int64

// NextID returns a new process-unique command ID.
func NextID() ID {
	return ID(lastID.Add(1))
}

// Same reports whether a and b denote the same command. Identity is by ID,
// not by field content.
func Same(a, b Command) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}
