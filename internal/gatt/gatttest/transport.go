// Package gatttest provides a scriptable in-memory gatt.Transport for tests.
// Commands issued by the session are recorded; completions are driven either
// by per-operation handlers installed on the fake connection or manually
// through the Callbacks the connection was created with.
package gatttest

import (
	"sync"
	"time"

	"github.com/srg/blegatt/internal/gatt"
)

// Command is one radio command the session issued to the fake connection.
type Command struct {
	Op           string // "discover", "read", "write", "write-descriptor", "mtu", "disconnect"
	Key          gatt.CharacteristicKey
	Value        []byte
	WithResponse bool
	Descriptor   string
	MTU          int
}

// Transport is a fake gatt.Transport. The zero value completes every connect
// attempt successfully on a separate goroutine.
type Transport struct {
	// ConnectErr, when set, makes Connect fail synchronously (start failure).
	ConnectErr error

	// ConnectStatus is the asynchronously delivered attempt outcome.
	// Zero means success.
	ConnectStatus gatt.Status

	// Silent suppresses the attempt outcome entirely: the handle is returned
	// but no connection state change is ever delivered.
	Silent bool

	// Sync delivers the attempt outcome on the caller's goroutine, before
	// Connect returns. Real stacks can complete a cached connection this fast.
	Sync bool

	// Bondings maps addresses to their pairing state.
	Bondings map[string]bool

	mu    sync.Mutex
	conns []*Conn
}

// NewTransport creates a fake transport that connects successfully.
func NewTransport() *Transport {
	return &Transport{Bondings: make(map[string]bool)}
}

// Connect implements gatt.Transport.
func (t *Transport) Connect(address string, cb gatt.Callbacks) (gatt.Conn, error) {
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}

	c := NewConn(cb)
	t.mu.Lock()
	t.conns = append(t.conns, c)
	status := t.ConnectStatus
	silent := t.Silent
	sync := t.Sync
	t.mu.Unlock()

	if silent {
		return c, nil
	}

	deliver := func() {
		if status.OK() {
			cb.OnConnectionStateChange(gatt.StatusSuccess, true)
		} else {
			cb.OnConnectionStateChange(status, false)
		}
	}
	if sync {
		deliver()
	} else {
		go deliver()
	}
	return c, nil
}

// Bonded implements gatt.Transport.
func (t *Transport) Bonded(address string) bool {
	return t.Bondings[address]
}

// LastConn returns the most recently created connection, or nil.
func (t *Transport) LastConn() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

// ConnCount returns how many connection handles the transport handed out.
func (t *Transport) ConnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Conn is a fake gatt.Conn recording every command. Optional handlers run on
// their own goroutine after the command is recorded; without a handler the
// command just sits recorded and the test drives Callbacks() by hand.
type Conn struct {
	// Start-failure injection: a non-nil error is returned by the matching
	// method before anything is recorded or dispatched.
	DiscoverErr   error
	ReadErr       error
	WriteErr      error
	DescriptorErr error
	MTUErr        error

	// Scripted completions.
	OnDiscover        func(cb gatt.Callbacks)
	OnRead            func(key gatt.CharacteristicKey, cb gatt.Callbacks)
	OnWrite           func(key gatt.CharacteristicKey, value []byte, withResponse bool, cb gatt.Callbacks)
	OnWriteDescriptor func(key gatt.CharacteristicKey, descriptorUUID string, value []byte, cb gatt.Callbacks)
	OnMTU             func(mtu int, cb gatt.Callbacks)

	cb gatt.Callbacks

	mu          sync.Mutex
	commands    []Command
	closes      int
	disconnects int
}

// NewConn creates a fake connection reporting to cb.
func NewConn(cb gatt.Callbacks) *Conn {
	return &Conn{cb: cb}
}

// Callbacks returns the session-side callback interface, for driving
// completions and notifications by hand.
func (c *Conn) Callbacks() gatt.Callbacks {
	return c.cb
}

// Commands returns a snapshot of all recorded commands.
func (c *Conn) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

// CommandCount returns how many commands with the given op were recorded.
func (c *Conn) CommandCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.commands {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// WaitForCommand polls until a command with the given op has been recorded,
// returning it, or nil after the timeout.
func (c *Conn) WaitForCommand(op string, timeout time.Duration) *Command {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for i := range c.commands {
			if c.commands[i].Op == op {
				cmd := c.commands[i]
				c.mu.Unlock()
				return &cmd
			}
		}
		c.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	return nil
}

// CloseCount returns how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// DisconnectCount returns how many times Disconnect was called.
func (c *Conn) DisconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// DiscoverServices implements gatt.Conn.
func (c *Conn) DiscoverServices() error {
	if c.DiscoverErr != nil {
		return c.DiscoverErr
	}
	c.record(Command{Op: "discover"})
	if c.OnDiscover != nil {
		go c.OnDiscover(c.cb)
	}
	return nil
}

// ReadCharacteristic implements gatt.Conn.
func (c *Conn) ReadCharacteristic(key gatt.CharacteristicKey) error {
	if c.ReadErr != nil {
		return c.ReadErr
	}
	c.record(Command{Op: "read", Key: key})
	if c.OnRead != nil {
		go c.OnRead(key, c.cb)
	}
	return nil
}

// WriteCharacteristic implements gatt.Conn.
func (c *Conn) WriteCharacteristic(key gatt.CharacteristicKey, value []byte, withResponse bool) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.record(Command{Op: "write", Key: key, Value: append([]byte(nil), value...), WithResponse: withResponse})
	if c.OnWrite != nil {
		go c.OnWrite(key, value, withResponse, c.cb)
	}
	return nil
}

// WriteDescriptor implements gatt.Conn.
func (c *Conn) WriteDescriptor(key gatt.CharacteristicKey, descriptorUUID string, value []byte) error {
	if c.DescriptorErr != nil {
		return c.DescriptorErr
	}
	c.record(Command{Op: "write-descriptor", Key: key, Descriptor: descriptorUUID, Value: append([]byte(nil), value...)})
	if c.OnWriteDescriptor != nil {
		go c.OnWriteDescriptor(key, descriptorUUID, value, c.cb)
	}
	return nil
}

// RequestMTU implements gatt.Conn.
func (c *Conn) RequestMTU(mtu int) error {
	if c.MTUErr != nil {
		return c.MTUErr
	}
	c.record(Command{Op: "mtu", MTU: mtu})
	if c.OnMTU != nil {
		go c.OnMTU(mtu, c.cb)
	}
	return nil
}

// Disconnect implements gatt.Conn.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	return nil
}

// Close implements gatt.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *Conn) record(cmd Command) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	c.mu.Unlock()
}
