package gatt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnState is the session's connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateCleaningUp
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateCleaningUp:
		return "cleaning_up"
	default:
		return "unknown"
	}
}

// Session owns the connection lifecycle for exactly one remote peripheral: the
// single hardware handle, the discovered topology, and the correlation of
// asynchronous operations with their eventual stack-level completions. Public
// operations may be called from multiple goroutines; the transport's callbacks
// arrive on its own thread(s) and are absorbed here.
type Session struct {
	address   string
	transport Transport
	opts      Options
	logger    *logrus.Logger

	registry   *Registry
	catalog    *Catalog
	dispatcher *notificationDispatcher
	events     *eventEmitter

	// mu guards state, conn, mtu and the grace timer. The cleanup guard is the
	// StateCleaningUp state itself: whichever path claims it runs the close
	// protocol exactly once.
	mu    sync.Mutex
	state ConnState
	conn  Conn
	mtu   int
}

// NewSession creates a session for one peripheral address. logger may be nil.
func NewSession(address string, transport Transport, logger *logrus.Logger, opts *Options) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Session{
		address:    address,
		transport:  transport,
		opts:       *opts,
		logger:     logger,
		registry:   NewRegistry(opts.RequestTimeout, logger),
		catalog:    NewCatalog(logger),
		dispatcher: newNotificationDispatcher(logger),
		events:     &eventEmitter{logger: logger},
		state:      StateDisconnected,
		mtu:        opts.MTU,
	}
}

// Address returns the peripheral identity this session manages.
func (s *Session) Address() string {
	return s.address
}

// SetEventSink attaches (or detaches, with nil) the lifecycle event sink.
func (s *Session) SetEventSink(sink EventSink) {
	s.events.SetSink(sink)
}

// SetNotificationSink attaches (or detaches, with nil) the notification sink.
// Notifications arriving while no sink is attached are dropped, not queued.
func (s *Session) SetNotificationSink(sink NotificationSink) {
	s.dispatcher.SetSink(sink)
}

// ----------------------------
// Connection lifecycle
// ----------------------------

// Connect establishes the connection. Fails immediately with
// ErrAlreadyConnected while a live handle exists (including during the short
// cleanup grace window after a terminal transition).
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"address": s.address,
				"state":   state.String(),
			}).Warn("Connect attempt while not disconnected")
		}
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithField("address", s.address).Info("Connecting to peripheral...")
	}

	pending := s.registry.Register(OpConnect, CharacteristicKey{})

	conn, err := s.transport.Connect(s.address, s)
	if err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		s.mu.Lock()
		if s.state == StateConnecting {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"address": s.address,
				"error":   err,
			}).Error("Failed to start connection attempt")
		}
		return startErr
	}

	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateConnected:
		// StateConnected means the success callback beat us here; the
		// attempt is live either way and the handle must be kept.
		s.conn = conn
		s.mu.Unlock()
	default:
		// A terminal callback already ran cleanup before the handle was
		// stored; release it here so it cannot leak a connection slot.
		s.mu.Unlock()
		if closeErr := conn.Close(); closeErr != nil && s.logger != nil {
			s.logger.WithField("error", closeErr).Warn("Failed to close orphaned connection handle")
		}
	}

	res := pending.Await(ctx)
	if res.Err != nil && (errors.Is(res.Err, ErrTimeout) || errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
		// The attempt was abandoned locally, not resolved by a terminal
		// callback; release the handle so it cannot leak a connection slot.
		s.cleanup(StatusConnectionTimeout, true)
	}
	return res.Err
}

// Disconnect tears the connection down. Idempotent: with no live handle, or a
// disconnect already in progress, it resolves as a no-op success.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateCleaningUp {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.WithField("address", s.address).Debug("Disconnect called but already disconnected")
		}
		return nil
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithField("address", s.address).Info("Disconnecting from peripheral...")
	}

	s.cleanup(StatusSuccess, true)
	return nil
}

// IsConnected reports whether a live, established connection exists. Pure read.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// IsBonded reports the device pairing state, independent of connection state.
func (s *Session) IsBonded() bool {
	return s.transport.Bonded(s.address)
}

// State returns the current connection state. Pure read.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ----------------------------
// Service discovery
// ----------------------------

// DiscoverServices runs a discovery pass and atomically replaces the catalog
// on success. On failure the catalog is cleared - no stale entries survive.
func (s *Session) DiscoverServices(ctx context.Context) error {
	conn, err := s.connected()
	if err != nil {
		return err
	}

	pending := s.registry.Register(OpDiscover, CharacteristicKey{})
	if err := conn.DiscoverServices(); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		return startErr
	}
	return pending.Await(ctx).Err
}

// Services returns a snapshot of the most recent successful discovery.
func (s *Session) Services() []ServiceRecord {
	return s.catalog.Services()
}

// ----------------------------
// Characteristic operations
// ----------------------------

// Read reads a characteristic value. Keyed per characteristic: reads on
// distinct characteristics may be outstanding concurrently.
func (s *Session) Read(ctx context.Context, serviceUUID, characteristicUUID string) ([]byte, error) {
	conn, rec, err := s.resolve(serviceUUID, characteristicUUID)
	if err != nil {
		return nil, err
	}

	pending := s.registry.Register(OpRead, rec.Key())
	if err := conn.ReadCharacteristic(rec.Key()); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		return nil, startErr
	}
	res := pending.Await(ctx)
	return res.Value, res.Err
}

// Write writes a characteristic value. Without-response writes route through
// the same completion path because the stack signals completion either way.
func (s *Session) Write(ctx context.Context, serviceUUID, characteristicUUID string, value []byte, withResponse bool) error {
	conn, rec, err := s.resolve(serviceUUID, characteristicUUID)
	if err != nil {
		return err
	}

	pending := s.registry.Register(OpWrite, rec.Key())
	if err := conn.WriteCharacteristic(rec.Key(), value, withResponse); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		return startErr
	}
	return pending.Await(ctx).Err
}

// Subscribe toggles notification delivery for a characteristic: it flips the
// local delivery flag, then writes the standard enable/disable value to the
// characteristic's client-configuration descriptor. One global slot - the
// stack allows a single outstanding descriptor write per session.
func (s *Session) Subscribe(ctx context.Context, serviceUUID, characteristicUUID string, enabled bool) error {
	conn, rec, err := s.resolve(serviceUUID, characteristicUUID)
	if err != nil {
		return err
	}

	if enabled && rec.Properties&(PropertyNotify|PropertyIndicate) == 0 && s.logger != nil {
		s.logger.WithField("key", rec.Key().String()).Warn("Subscribing to characteristic without notify/indicate property")
	}

	s.dispatcher.setSubscribed(rec.Key(), enabled)

	value := DisableNotificationValue
	if enabled {
		value = EnableNotificationValue
		if rec.Properties&PropertyNotify == 0 && rec.Properties&PropertyIndicate != 0 {
			value = EnableIndicationValue
		}
	}

	pending := s.registry.Register(OpDescriptorWrite, CharacteristicKey{})
	if err := conn.WriteDescriptor(rec.Key(), DescriptorCCCD, value); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		return startErr
	}
	return pending.Await(ctx).Err
}

// RequestMTU negotiates a new ATT MTU. Success updates the cached value and
// returns it; failure leaves the cache untouched. One global slot.
func (s *Session) RequestMTU(ctx context.Context, mtu int) (int, error) {
	conn, err := s.connected()
	if err != nil {
		return 0, err
	}

	pending := s.registry.Register(OpMtu, CharacteristicKey{})
	if err := conn.RequestMTU(mtu); err != nil {
		startErr := fmt.Errorf("%w: %v", ErrStartFailed, err)
		s.registry.Abort(pending, startErr)
		return 0, startErr
	}
	res := pending.Await(ctx)
	return res.MTU, res.Err
}

// MTU returns the current negotiated ATT MTU. Pure read.
func (s *Session) MTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtu
}

// ----------------------------
// Transport callbacks
// ----------------------------

// OnConnectionStateChange implements Callbacks.
func (s *Session) OnConnectionStateChange(status Status, connected bool) {
	if connected && status.OK() {
		s.mu.Lock()
		if s.state != StateConnecting {
			state := s.state
			s.mu.Unlock()
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{
					"address": s.address,
					"state":   state.String(),
				}).Debug("Stale connect completion ignored")
			}
			return
		}
		s.state = StateConnected
		s.mu.Unlock()

		s.registry.Resolve(OpConnect, CharacteristicKey{}, Result{})
		if s.logger != nil {
			s.logger.WithField("address", s.address).Info("Peripheral connected")
		}
		s.events.emit(DeviceConnected, s.address)
		return
	}

	// Connect failure or disconnection of any cause: one cleanup per transition.
	s.cleanup(status, false)
}

// OnServicesDiscovered implements Callbacks.
func (s *Session) OnServicesDiscovered(status Status, services []*ServiceRecord) {
	if status.OK() {
		s.catalog.Replace(services)
		s.registry.Resolve(OpDiscover, CharacteristicKey{}, Result{})
		return
	}
	s.catalog.Clear()
	s.registry.Fail(OpDiscover, CharacteristicKey{}, &DiscoveryError{Status: status})
}

// OnCharacteristicRead implements Callbacks.
func (s *Session) OnCharacteristicRead(key CharacteristicKey, status Status, value []byte) {
	if status.OK() {
		s.registry.Resolve(OpRead, key, Result{Value: value})
		return
	}
	s.registry.Fail(OpRead, key, &OperationError{Kind: OpRead, Status: status})
}

// OnCharacteristicWrite implements Callbacks.
func (s *Session) OnCharacteristicWrite(key CharacteristicKey, status Status) {
	if status.OK() {
		s.registry.Resolve(OpWrite, key, Result{})
		return
	}
	s.registry.Fail(OpWrite, key, &OperationError{Kind: OpWrite, Status: status})
}

// OnDescriptorWrite implements Callbacks.
func (s *Session) OnDescriptorWrite(key CharacteristicKey, descriptorUUID string, status Status) {
	if NormalizeUUID(descriptorUUID) != DescriptorCCCD {
		s.registry.Fail(OpDescriptorWrite, CharacteristicKey{},
			fmt.Errorf("%w: %q", ErrUnexpectedDescriptor, descriptorUUID))
		return
	}
	if status.OK() {
		s.registry.Resolve(OpDescriptorWrite, CharacteristicKey{}, Result{})
		return
	}
	s.registry.Fail(OpDescriptorWrite, CharacteristicKey{}, &OperationError{Kind: OpDescriptorWrite, Status: status})
}

// OnMTUChanged implements Callbacks. Failure and success are mutually
// exclusive terminal outcomes: a failed exchange never updates the cache.
func (s *Session) OnMTUChanged(status Status, mtu int) {
	if status.OK() {
		s.mu.Lock()
		s.mtu = mtu
		s.mu.Unlock()
		s.registry.Resolve(OpMtu, CharacteristicKey{}, Result{MTU: mtu})
		return
	}
	s.registry.Fail(OpMtu, CharacteristicKey{}, &OperationError{Kind: OpMtu, Status: status})
}

// OnCharacteristicChanged implements Callbacks.
func (s *Session) OnCharacteristicChanged(key CharacteristicKey, value []byte) {
	s.dispatcher.dispatch(key, value)
}

// ----------------------------
// Internal helpers
// ----------------------------

// connected returns the live handle or ErrNotConnected.
func (s *Session) connected() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// resolve validates the connection and resolves the characteristic through the
// catalog index before any radio command is issued.
func (s *Session) resolve(serviceUUID, characteristicUUID string) (Conn, *CharacteristicRecord, error) {
	conn, err := s.connected()
	if err != nil {
		return nil, nil, err
	}
	rec, err := s.catalog.Lookup(serviceUUID, characteristicUUID)
	if err != nil {
		return nil, nil, err
	}
	return conn, rec, nil
}

// cleanup runs the close protocol exactly once per connect/disconnect cycle.
// Ordering is the critical invariant: pending requests are failed while the
// handle is still valid, the handle is closed before the state is marked
// disconnected, and only then is the topology cache dropped. The session stays
// in StateCleaningUp for a short grace window to absorb duplicate terminal
// callbacks from the same hardware event.
func (s *Session) cleanup(status Status, requestDisconnect bool) {
	s.mu.Lock()
	if s.state == StateCleaningUp || s.state == StateDisconnected {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"address": s.address,
				"status":  status.String(),
			}).Debug("Duplicate terminal callback absorbed")
		}
		return
	}
	wasConnected := s.state == StateConnected
	s.state = StateCleaningUp
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"address":       s.address,
			"status":        status.String(),
			"was_connected": wasConnected,
		}).Info("Cleaning up connection...")
	}

	// Fail every pending request before the handle becomes invalid so no
	// stale completion can reference it. A stack-reported connect failure
	// resolves with its categorized reason; an explicit disconnect (success
	// status) and everything else is session teardown.
	if !wasConnected && !status.OK() {
		s.registry.Fail(OpConnect, CharacteristicKey{}, &OperationError{Kind: OpConnect, Status: status})
	}
	s.registry.FailAll(ErrSessionClosed)

	if conn != nil {
		if requestDisconnect {
			if err := conn.Disconnect(); err != nil && s.logger != nil {
				s.logger.WithField("error", err).Warn("Disconnect request failed")
			}
		}
		// Close must always be attempted: an unreleased handle exhausts the
		// stack's connection pool and times out every later connect attempt.
		if err := conn.Close(); err != nil && s.logger != nil {
			s.logger.WithField("error", err).Warn("Failed to close connection handle")
		}
	}

	s.catalog.Clear()
	s.dispatcher.clearSubscriptions()

	s.mu.Lock()
	s.mtu = s.opts.MTU
	s.mu.Unlock()

	if wasConnected {
		s.events.emit(DeviceDisconnected, s.address)
	}

	grace := s.opts.CleanupGrace
	if grace <= 0 {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return
	}
	time.AfterFunc(grace, func() {
		s.mu.Lock()
		if s.state == StateCleaningUp {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.WithField("address", s.address).Debug("Cleanup grace window elapsed")
		}
	})
}
