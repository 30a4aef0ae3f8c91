package gatt

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// LifecycleEvent is a connection lifecycle transition delivered to the event sink.
type LifecycleEvent int

const (
	DeviceConnected LifecycleEvent = iota
	DeviceDisconnected
)

func (e LifecycleEvent) String() string {
	switch e {
	case DeviceConnected:
		return "connected"
	case DeviceDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// EventSink accepts fire-and-forget lifecycle events. The session holds the
// sink by reference and never owns it; it may be unset at any time.
type EventSink interface {
	HandleDeviceEvent(event LifecycleEvent, address string)
}

// eventEmitter delivers lifecycle events best-effort: with no sink attached
// emission is a no-op. Events for one session are emitted in transition order.
type eventEmitter struct {
	mu     sync.Mutex
	sink   EventSink
	logger *logrus.Logger
}

func (e *eventEmitter) SetSink(sink EventSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

func (e *eventEmitter) emit(event LifecycleEvent, address string) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()

	if sink == nil {
		if e.logger != nil {
			e.logger.WithFields(logrus.Fields{
				"event":   event.String(),
				"address": address,
			}).Debug("No event sink attached, lifecycle event dropped")
		}
		return
	}
	sink.HandleDeviceEvent(event, address)
}
