package voice

import (
	"errors"
	"fmt"
	"time"
)

// ErrEventStreamClosed is returned when the event bus ends while a join waits on it.
var ErrEventStreamClosed = errors.New("voice event stream closed")

// CapabilityError means the session cannot observe voice states,
// so a join could never complete.
type CapabilityError struct {
	Capability Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("missing capability %s", e.Capability)
}

var _ error = (*CapabilityError)(nil)

// TimeoutError is returned when the handshake did not produce a connection in time.
type TimeoutError struct {
	GuildID string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("voice join for guild %s timed out after %s", e.GuildID, e.Timeout)
}

var _ error = (*TimeoutError)(nil)

// TransportError wraps a failed command send or a closed event stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var _ error = (*TransportError)(nil)

// DiscoveryError is returned by gateway factories when IP discovery
// exhausted its retry budget.
type DiscoveryError struct {
	Attempts int
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("ip discovery failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

var _ error = (*DiscoveryError)(nil)
