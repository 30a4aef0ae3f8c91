package gatt

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// Multiple UUIDs walk the GATT hierarchy: characteristic in service,
	// descriptor in characteristic.
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
)

// Operation errors
var (
	// ErrOverwritten resolves a pending request that was displaced by a newer
	// request for the same operation slot. Requests are never silently dropped.
	ErrOverwritten = errors.New("overwritten by a newer request")

	// ErrStartFailed wraps failures to issue a command to the radio stack.
	ErrStartFailed = errors.New("command could not be issued")

	// ErrTimeout resolves a pending request whose completion never arrived.
	ErrTimeout = errors.New("timeout")

	// ErrSessionClosed resolves pending requests torn down by a disconnect.
	ErrSessionClosed = errors.New("session torn down")

	// ErrUnexpectedDescriptor is reported when a descriptor-write completion
	// references a descriptor other than the one the request targeted.
	ErrUnexpectedDescriptor = errors.New("unexpected descriptor")
)

// OperationError is an asynchronous operation failure carrying the stack-level
// status code and its semantic category.
type OperationError struct {
	Kind   OpKind
	Status Status
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Status)
}

// Is allows errors.Is to match OperationError values by kind and status.
func (e *OperationError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Status == t.Status
}

// DiscoveryError is a failed service discovery with the underlying status code.
type DiscoveryError struct {
	Status Status
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("service discovery failed: %s", e.Status)
}

// StatusOf extracts the stack status code from an operation or discovery error.
// Returns StatusSuccess and false when err carries no status.
func StatusOf(err error) (Status, bool) {
	var oerr *OperationError
	if errors.As(err, &oerr) {
		return oerr.Status, true
	}
	var derr *DiscoveryError
	if errors.As(err, &derr) {
		return derr.Status, true
	}
	return StatusSuccess, false
}
