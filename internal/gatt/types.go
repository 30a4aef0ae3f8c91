package gatt

import (
	"strings"
)

// ----------------------------
// UUID Normalization
// ----------------------------

// NormalizeUUID converts a UUID string to the internal lookup format
// (lowercase, no dashes). Handles both standard UUID format (with dashes)
// and already normalized format (without dashes).
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}

// ----------------------------
// Characteristic Properties
// ----------------------------

// Property is a bitmask of the declared GATT characteristic property flags.
type Property uint8

const (
	PropertyBroadcast Property = 1 << iota
	PropertyRead
	PropertyWriteWithoutResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
	PropertyAuthenticatedSignedWrites
	PropertyExtendedProperties
)

var propertyNames = []struct {
	flag Property
	name string
}{
	{PropertyBroadcast, "broadcast"},
	{PropertyRead, "read"},
	{PropertyWriteWithoutResponse, "write-without-response"},
	{PropertyWrite, "write"},
	{PropertyNotify, "notify"},
	{PropertyIndicate, "indicate"},
	{PropertyAuthenticatedSignedWrites, "authenticated-signed-writes"},
	{PropertyExtendedProperties, "extended-properties"},
}

// String renders the property flags as a comma-separated list, e.g. "read,notify".
func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.flag != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ----------------------------
// Keys and Records
// ----------------------------

// CharacteristicKey identifies a characteristic by its UUID together with the
// owning service UUID. Characteristic UUIDs are not guaranteed globally unique
// across services, so the pair is the indexing identity everywhere.
type CharacteristicKey struct {
	Service        string
	Characteristic string
}

// NewCharacteristicKey builds a key with both UUIDs normalized.
func NewCharacteristicKey(serviceUUID, characteristicUUID string) CharacteristicKey {
	return CharacteristicKey{
		Service:        NormalizeUUID(serviceUUID),
		Characteristic: NormalizeUUID(characteristicUUID),
	}
}

// String renders the key in "service/characteristic" form, the format used for
// index keys and log fields.
func (k CharacteristicKey) String() string {
	return k.Service + "/" + k.Characteristic
}

// IsZero reports whether the key carries no identity. Zero keys are used for the
// session-global descriptor-write and MTU registry slots.
func (k CharacteristicKey) IsZero() bool {
	return k.Service == "" && k.Characteristic == ""
}

// CharacteristicRecord is the catalog entry for one discovered characteristic.
// Records are produced wholesale at service discovery and never patched in place.
type CharacteristicRecord struct {
	UUID        string
	Service     string
	Properties  Property
	Descriptors []string
}

// Key returns the (characteristic, service) identity of this record.
func (r *CharacteristicRecord) Key() CharacteristicKey {
	return CharacteristicKey{Service: r.Service, Characteristic: r.UUID}
}

// ServiceRecord is the catalog entry for one discovered service with its
// characteristics in the order the radio reported them.
type ServiceRecord struct {
	UUID            string
	Primary         bool
	Characteristics []*CharacteristicRecord
}

// ----------------------------
// Client Characteristic Configuration
// ----------------------------

// DescriptorCCCD is the Client Characteristic Configuration Descriptor UUID
// (normalized short form) used to toggle notifications and indications.
const DescriptorCCCD = "2902"

// Standard CCCD values per the Bluetooth Core specification.
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	EnableIndicationValue    = []byte{0x02, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)
