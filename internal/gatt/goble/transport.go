// Package goble implements the gatt.Transport contract on the go-ble stack.
// go-ble's client API is synchronous; every command is dispatched on a named
// goroutine and its outcome reported through the session's callbacks, matching
// the callback-driven contract the session expects.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/blegatt/internal/gatt"
	"github.com/srg/blegatt/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Config configures the transport.
type Config struct {
	// DialTimeout bounds the connection attempt.
	DialTimeout time.Duration `default:"10s"`
}

// DefaultConfig returns Config populated from the struct tags.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Transport is the go-ble backed radio-stack adapter.
type Transport struct {
	cfg    Config
	logger *logrus.Logger
}

// NewTransport creates a transport. logger may be nil.
func NewTransport(logger *logrus.Logger, cfg *Config) *Transport {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Transport{cfg: *cfg, logger: logger}
}

// Connect starts a non-auto-reconnect connection attempt. The handle is
// returned immediately; the attempt's outcome arrives via
// cb.OnConnectionStateChange on the dial goroutine.
func (t *Transport) Connect(address string, cb gatt.Callbacks) (gatt.Conn, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	c := &conn{
		address: address,
		cb:      cb,
		logger:  t.logger,
		timeout: t.cfg.DialTimeout,
	}
	groutine.Go(context.Background(), "ble-dial", c.dial)
	return c, nil
}

// Bonded implements gatt.Transport. CoreBluetooth does not expose bonding
// state to applications, so the transport reports false unconditionally.
func (t *Transport) Bonded(string) bool {
	return false
}

// conn is the live go-ble connection handle.
type conn struct {
	address string
	cb      gatt.Callbacks
	logger  *logrus.Logger
	timeout time.Duration

	mu     sync.Mutex
	client ble.Client
	chars  map[string]*ble.Characteristic // by "service/characteristic" key
	closed bool
}

func (c *conn) dial(ctx context.Context) {
	dev, err := DeviceFactory()
	if err != nil {
		if c.logger != nil {
			c.logger.WithField("error", err).Error("Failed to create BLE device")
		}
		c.cb.OnConnectionStateChange(gatt.StatusUnreachable, false)
		return
	}
	ble.SetDefaultDevice(dev)

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.logger != nil {
		c.logger.WithField("address", c.address).Debug("Dialing BLE device...")
	}
	client, err := ble.Dial(dialCtx, ble.NewAddr(c.address))
	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"address": c.address,
				"error":   err,
			}).Error("Failed to dial BLE device")
		}
		status := gatt.StatusUnreachable
		if dialCtx.Err() != nil {
			status = gatt.StatusConnectionTimeout
		}
		c.cb.OnConnectionStateChange(status, false)
		return
	}

	c.mu.Lock()
	if c.closed {
		// The session already gave up on this attempt.
		c.mu.Unlock()
		if err := client.CancelConnection(); err != nil && c.logger != nil {
			c.logger.WithField("error", err).Warn("Failed to cancel abandoned connection")
		}
		return
	}
	c.client = client
	c.mu.Unlock()

	// Watch for spontaneous link loss reported by the platform stack.
	groutine.Go(context.Background(), "ble-conn-monitor", func(context.Context) {
		<-client.Disconnected()
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if c.logger != nil {
			c.logger.WithField("address", c.address).Warn("Platform stack reported disconnection")
		}
		c.cb.OnConnectionStateChange(gatt.StatusLinkLost, false)
	})

	c.cb.OnConnectionStateChange(gatt.StatusSuccess, true)
}

// DiscoverServices implements gatt.Conn.
func (c *conn) DiscoverServices() error {
	client, err := c.live()
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "gatt-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			if c.logger != nil {
				c.logger.WithField("error", err).Error("Failed to discover profile")
			}
			c.cb.OnServicesDiscovered(gatt.StatusFailure, nil)
			return
		}

		chars := make(map[string]*ble.Characteristic)
		records := make([]*gatt.ServiceRecord, 0, len(profile.Services))
		for _, svc := range profile.Services {
			svcUUID := gatt.NormalizeUUID(svc.UUID.String())
			rec := &gatt.ServiceRecord{
				UUID: svcUUID,
				// DiscoverProfile walks primary services only.
				Primary:         true,
				Characteristics: make([]*gatt.CharacteristicRecord, 0, len(svc.Characteristics)),
			}
			for _, ch := range svc.Characteristics {
				charUUID := gatt.NormalizeUUID(ch.UUID.String())
				descriptors := make([]string, 0, len(ch.Descriptors))
				for _, d := range ch.Descriptors {
					descriptors = append(descriptors, gatt.NormalizeUUID(d.UUID.String()))
				}
				rec.Characteristics = append(rec.Characteristics, &gatt.CharacteristicRecord{
					UUID:        charUUID,
					Service:     svcUUID,
					Properties:  mapProperties(ch.Property),
					Descriptors: descriptors,
				})
				chars[gatt.CharacteristicKey{Service: svcUUID, Characteristic: charUUID}.String()] = ch
			}
			records = append(records, rec)
		}

		c.mu.Lock()
		c.chars = chars
		c.mu.Unlock()

		c.cb.OnServicesDiscovered(gatt.StatusSuccess, records)
	})
	return nil
}

// ReadCharacteristic implements gatt.Conn.
func (c *conn) ReadCharacteristic(key gatt.CharacteristicKey) error {
	client, char, err := c.characteristic(key)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "gatt-read", func(context.Context) {
		data, err := client.ReadCharacteristic(char)
		if err != nil {
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"key": key.String(), "error": err}).Error("Characteristic read failed")
			}
			c.cb.OnCharacteristicRead(key, gatt.StatusFailure, nil)
			return
		}
		c.cb.OnCharacteristicRead(key, gatt.StatusSuccess, data)
	})
	return nil
}

// WriteCharacteristic implements gatt.Conn.
func (c *conn) WriteCharacteristic(key gatt.CharacteristicKey, value []byte, withResponse bool) error {
	client, char, err := c.characteristic(key)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "gatt-write", func(context.Context) {
		if err := client.WriteCharacteristic(char, value, !withResponse); err != nil {
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"key": key.String(), "error": err}).Error("Characteristic write failed")
			}
			c.cb.OnCharacteristicWrite(key, gatt.StatusFailure)
			return
		}
		c.cb.OnCharacteristicWrite(key, gatt.StatusSuccess)
	})
	return nil
}

// WriteDescriptor implements gatt.Conn. go-ble manages the CCCD itself through
// Subscribe/Unsubscribe, so writes to it are bridged onto those calls; other
// descriptors are written directly.
func (c *conn) WriteDescriptor(key gatt.CharacteristicKey, descriptorUUID string, value []byte) error {
	client, char, err := c.characteristic(key)
	if err != nil {
		return err
	}

	if gatt.NormalizeUUID(descriptorUUID) == gatt.DescriptorCCCD {
		groutine.Go(context.Background(), "gatt-cccd-write", func(context.Context) {
			c.writeCCCD(client, char, key, descriptorUUID, value)
		})
		return nil
	}

	var desc *ble.Descriptor
	for _, d := range char.Descriptors {
		if gatt.NormalizeUUID(d.UUID.String()) == gatt.NormalizeUUID(descriptorUUID) {
			desc = d
			break
		}
	}
	if desc == nil {
		return fmt.Errorf("descriptor %q not found on %s", descriptorUUID, key)
	}

	groutine.Go(context.Background(), "gatt-descriptor-write", func(context.Context) {
		if err := client.WriteDescriptor(desc, value); err != nil {
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"key": key.String(), "descriptor": descriptorUUID, "error": err}).Error("Descriptor write failed")
			}
			c.cb.OnDescriptorWrite(key, descriptorUUID, gatt.StatusFailure)
			return
		}
		c.cb.OnDescriptorWrite(key, descriptorUUID, gatt.StatusSuccess)
	})
	return nil
}

func (c *conn) writeCCCD(client ble.Client, char *ble.Characteristic, key gatt.CharacteristicKey, descriptorUUID string, value []byte) {
	var err error
	switch {
	case len(value) > 0 && value[0]&0x01 != 0:
		err = client.Subscribe(char, false, func(data []byte) {
			c.cb.OnCharacteristicChanged(key, data)
		})
	case len(value) > 0 && value[0]&0x02 != 0:
		err = client.Subscribe(char, true, func(data []byte) {
			c.cb.OnCharacteristicChanged(key, data)
		})
	default:
		// Try both modes; only report failure when neither was subscribed.
		err1 := client.Unsubscribe(char, false)
		err2 := client.Unsubscribe(char, true)
		if err1 != nil && err2 != nil {
			err = fmt.Errorf("notify=%v, indicate=%v", err1, err2)
		}
	}

	if err != nil {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"key": key.String(), "error": err}).Error("CCCD write failed")
		}
		c.cb.OnDescriptorWrite(key, descriptorUUID, gatt.StatusFailure)
		return
	}
	c.cb.OnDescriptorWrite(key, descriptorUUID, gatt.StatusSuccess)
}

// RequestMTU implements gatt.Conn.
func (c *conn) RequestMTU(mtu int) error {
	client, err := c.live()
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "gatt-mtu", func(context.Context) {
		negotiated, err := client.ExchangeMTU(mtu)
		if err != nil {
			if c.logger != nil {
				c.logger.WithFields(logrus.Fields{"mtu": mtu, "error": err}).Error("MTU exchange failed")
			}
			c.cb.OnMTUChanged(gatt.StatusFailure, 0)
			return
		}
		c.cb.OnMTUChanged(gatt.StatusSuccess, negotiated)
	})
	return nil
}

// Disconnect implements gatt.Conn.
func (c *conn) Disconnect() error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.CancelConnection()
}

// Close implements gatt.Conn. Safe to call more than once; go-ble folds
// disconnect and resource release into CancelConnection.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	client := c.client
	c.client = nil
	c.chars = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.CancelConnection()
}

func (c *conn) live() (ble.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil, fmt.Errorf("connection is not established")
	}
	return c.client, nil
}

func (c *conn) characteristic(key gatt.CharacteristicKey) (ble.Client, *ble.Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil, nil, fmt.Errorf("connection is not established")
	}
	char, ok := c.chars[key.String()]
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %s not discovered", key)
	}
	return c.client, char, nil
}

func mapProperties(p ble.Property) gatt.Property {
	var out gatt.Property
	if p&ble.CharBroadcast != 0 {
		out |= gatt.PropertyBroadcast
	}
	if p&ble.CharRead != 0 {
		out |= gatt.PropertyRead
	}
	if p&ble.CharWriteNR != 0 {
		out |= gatt.PropertyWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		out |= gatt.PropertyWrite
	}
	if p&ble.CharNotify != 0 {
		out |= gatt.PropertyNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= gatt.PropertyIndicate
	}
	if p&ble.CharSignedWrite != 0 {
		out |= gatt.PropertyAuthenticatedSignedWrites
	}
	if p&ble.CharExtended != 0 {
		out |= gatt.PropertyExtendedProperties
	}
	return out
}
