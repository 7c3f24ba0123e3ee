package revkit

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("revkit: server configuration has not been fetched")
	ErrNoSession       = errors.New("revkit: no session")
	ErrFeatureDisabled = errors.New("revkit: feature is disabled on this instance")
	ErrUnsupported     = errors.New("revkit: operation not supported for this channel kind")
	ErrNotFound        = errors.New("revkit: not found")
	ErrPongTimeout     = errors.New("revkit: no pong received in time")
	ErrClosed          = errors.New("revkit: connection closed")
)

// ProtocolError is an Error frame sent by the server.
type ProtocolError struct {
	Type string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("revkit: server error %q", e.Type)
}
