// Package comms provides the per-task event bus that fans task events out to
// stream subscribers.
package comms

import "errors"

// ErrClosed is returned by Publish once the bus has carried its terminal event.
var ErrClosed = errors.New("comms: bus closed")

// Event is anything the bus can carry. Exactly one terminal event ends a bus.
type Event interface {
	IsTerminal() bool
}
