package gatt

// Callbacks is the narrow surface a transport invokes to report completions,
// unsolicited notifications and connection-state changes. The session
// implements it; the transport calls these methods on its own thread(s),
// serialized per connection handle. Implementations must tolerate callbacks
// arriving after the corresponding request was torn down.
type Callbacks interface {
	// OnConnectionStateChange reports the terminal outcome of a connect
	// attempt or a later (spontaneous or requested) disconnection.
	OnConnectionStateChange(status Status, connected bool)

	// OnServicesDiscovered reports the outcome of a discovery pass. services
	// is nil unless status is success.
	OnServicesDiscovered(status Status, services []*ServiceRecord)

	OnCharacteristicRead(key CharacteristicKey, status Status, value []byte)
	OnCharacteristicWrite(key CharacteristicKey, status Status)
	OnDescriptorWrite(key CharacteristicKey, descriptorUUID string, status Status)
	OnMTUChanged(status Status, mtu int)

	// OnCharacteristicChanged delivers an unsolicited value-change event.
	OnCharacteristicChanged(key CharacteristicKey, value []byte)
}

// Conn is the live radio connection handle. It exists only between a connect
// attempt and the completion of Close, and is owned exclusively by the session;
// its validity is the authority for whether characteristic commands may be
// issued. Every method only starts the command - a non-nil error means the
// command could not be issued at all; the outcome otherwise arrives via the
// Callbacks the handle was created with.
type Conn interface {
	DiscoverServices() error
	ReadCharacteristic(key CharacteristicKey) error
	WriteCharacteristic(key CharacteristicKey, value []byte, withResponse bool) error
	WriteDescriptor(key CharacteristicKey, descriptorUUID string, value []byte) error
	RequestMTU(mtu int) error

	// Disconnect requests an orderly teardown of the link. Best-effort.
	Disconnect() error

	// Close releases the underlying connection resources. It must always be
	// attempted on any terminal path: stacks with a bounded connection pool
	// leak a slot for every handle that is not closed promptly.
	Close() error
}

// Transport is the radio-stack adapter. Connect returns the handle immediately
// and reports the attempt's outcome through cb.OnConnectionStateChange; exactly
// one of success or failure fires per attempt.
type Transport interface {
	Connect(address string, cb Callbacks) (Conn, error)

	// Bonded reports the device's pairing state, independent of connection state.
	Bonded(address string) bool
}
