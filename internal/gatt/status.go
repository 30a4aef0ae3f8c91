package gatt

import "fmt"

// Status is a raw stack-level completion code as reported by the radio stack.
// Zero is success; everything else is vendor numerics that callers should never
// have to interpret directly - Category() translates them.
type Status int

const (
	StatusSuccess Status = 0x00

	// StatusConnectionTimeout is reported when the link supervision timer
	// expires before the connection could complete.
	StatusConnectionTimeout Status = 0x08

	// StatusConnLimitExceeded is reported when the controller refuses another
	// concurrent connection.
	StatusConnLimitExceeded Status = 0x09

	// StatusTerminatedByPeer is reported when the remote device closed the link.
	StatusTerminatedByPeer Status = 0x13

	// StatusTerminatedByHost is reported when the local host closed the link.
	StatusTerminatedByHost Status = 0x16

	// StatusLMPTimeout is reported when the peer stopped answering link-layer
	// requests, typically because it moved out of range.
	StatusLMPTimeout Status = 0x22

	// StatusLinkLost is reported when an established link dropped without a
	// protocol-level teardown.
	StatusLinkLost Status = 0x3e

	// StatusNoResources is reported when the stack ran out of GATT resources.
	StatusNoResources Status = 0x80

	// StatusUnreachable is the catch-all connection error most stacks report
	// when the device cannot be reached at all (the infamous 133).
	StatusUnreachable Status = 0x85

	// StatusFailure is the generic GATT failure code.
	StatusFailure Status = 0x101
)

// OK reports whether the status denotes success.
func (s Status) OK() bool {
	return s == StatusSuccess
}

func (s Status) String() string {
	return fmt.Sprintf("status %d (%s)", int(s), s.Category())
}

// Category is a semantic classification of stack status codes. Callers get
// actionable categories instead of vendor numerics.
type Category int

const (
	CategoryNormal Category = iota
	CategoryTimeout
	CategoryOutOfRange
	CategoryTerminatedByPeer
	CategoryLinkLoss
	CategoryResourceExhausted
	CategoryUnreachable
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryNormal:
		return "normal"
	case CategoryTimeout:
		return "connection timeout"
	case CategoryOutOfRange:
		return "out of range"
	case CategoryTerminatedByPeer:
		return "terminated by peer"
	case CategoryLinkLoss:
		return "link loss"
	case CategoryResourceExhausted:
		return "too many concurrent clients"
	case CategoryUnreachable:
		return "device unreachable"
	default:
		return "unknown"
	}
}

// Category maps a raw status code to its semantic category.
func (s Status) Category() Category {
	switch s {
	case StatusSuccess, StatusTerminatedByHost:
		return CategoryNormal
	case StatusConnectionTimeout:
		return CategoryTimeout
	case StatusLMPTimeout:
		return CategoryOutOfRange
	case StatusTerminatedByPeer:
		return CategoryTerminatedByPeer
	case StatusLinkLost:
		return CategoryLinkLoss
	case StatusConnLimitExceeded, StatusNoResources:
		return CategoryResourceExhausted
	case StatusUnreachable:
		return CategoryUnreachable
	default:
		return CategoryUnknown
	}
}
