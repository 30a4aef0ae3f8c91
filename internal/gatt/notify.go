package gatt

import (
	"encoding/base64"
	"sync"

	"github.com/sirupsen/logrus"
)

// Notification is one unsolicited characteristic-value-change record. Data is
// the raw payload in base64 so the record survives any text transport.
type Notification struct {
	ServiceUUID        string
	CharacteristicUUID string
	Data               string
}

// NotificationSink accepts characteristic-value-change records.
type NotificationSink interface {
	HandleNotification(n Notification)
}

// notificationDispatcher forwards value-change events to a single settable
// sink. Deliveries are serialized (never two concurrent calls into the sink)
// but unordered relative to completions on other characteristics. Nothing is
// queued: with no sink attached, or for a characteristic whose delivery flag
// is off, the event is dropped.
type notificationDispatcher struct {
	mu         sync.Mutex // serializes delivery and guards sink/flags
	sink       NotificationSink
	subscribed map[CharacteristicKey]bool
	logger     *logrus.Logger
}

func newNotificationDispatcher(logger *logrus.Logger) *notificationDispatcher {
	return &notificationDispatcher{
		subscribed: make(map[CharacteristicKey]bool),
		logger:     logger,
	}
}

func (d *notificationDispatcher) SetSink(sink NotificationSink) {
	d.mu.Lock()
	d.sink = sink
	d.mu.Unlock()
}

// setSubscribed toggles the local delivery flag for one characteristic.
func (d *notificationDispatcher) setSubscribed(key CharacteristicKey, enabled bool) {
	d.mu.Lock()
	if enabled {
		d.subscribed[key] = true
	} else {
		delete(d.subscribed, key)
	}
	d.mu.Unlock()
}

// clearSubscriptions drops every delivery flag. Called on disconnect.
func (d *notificationDispatcher) clearSubscriptions() {
	d.mu.Lock()
	d.subscribed = make(map[CharacteristicKey]bool)
	d.mu.Unlock()
}

func (d *notificationDispatcher) dispatch(key CharacteristicKey, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.subscribed[key] {
		if d.logger != nil {
			d.logger.WithField("key", key.String()).Debug("Notification for unsubscribed characteristic dropped")
		}
		return
	}
	if d.sink == nil {
		if d.logger != nil {
			d.logger.WithField("key", key.String()).Debug("No notification sink attached, notification dropped")
		}
		return
	}

	d.sink.HandleNotification(Notification{
		ServiceUUID:        key.Service,
		CharacteristicUUID: key.Characteristic,
		Data:               base64.StdEncoding.EncodeToString(data),
	})
}
