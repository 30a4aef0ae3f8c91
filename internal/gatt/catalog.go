package gatt

import (
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Catalog is the immutable-after-discovery snapshot of the peripheral's
// service/characteristic topology. The whole table is replaced on each
// successful discovery and cleared on failure or disconnect - entries are never
// patched incrementally. Services keep the order the radio reported them;
// characteristic lookup goes through a lock-free index keyed by
// (service, characteristic).
type Catalog struct {
	// mu only guards swapping the table pointers; reads go through the
	// swapped-in structures, which are never mutated after installation.
	mu       sync.RWMutex
	services *orderedmap.OrderedMap[string, *ServiceRecord]
	index    *hashmap.Map[string, *CharacteristicRecord]
	logger   *logrus.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(logger *logrus.Logger) *Catalog {
	c := &Catalog{logger: logger}
	c.install(orderedmap.New[string, *ServiceRecord](), hashmap.New[string, *CharacteristicRecord]())
	return c
}

// Replace atomically swaps in a freshly discovered topology and rebuilds the
// characteristic index. All UUIDs are normalized on the way in.
func (c *Catalog) Replace(services []*ServiceRecord) {
	table := orderedmap.New[string, *ServiceRecord]()
	index := hashmap.New[string, *CharacteristicRecord]()

	for _, svc := range services {
		rec := &ServiceRecord{
			UUID:            NormalizeUUID(svc.UUID),
			Primary:         svc.Primary,
			Characteristics: make([]*CharacteristicRecord, 0, len(svc.Characteristics)),
		}
		for _, ch := range svc.Characteristics {
			char := &CharacteristicRecord{
				UUID:        NormalizeUUID(ch.UUID),
				Service:     rec.UUID,
				Properties:  ch.Properties,
				Descriptors: NormalizeUUIDs(ch.Descriptors),
			}
			rec.Characteristics = append(rec.Characteristics, char)
			index.Set(char.Key().String(), char)
		}
		table.Set(rec.UUID, rec)
	}

	c.install(table, index)

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"services":        table.Len(),
			"characteristics": index.Len(),
		}).Debug("Service catalog replaced")
	}
}

// Clear empties the catalog. Called on discovery failure and on every
// disconnect so no stale topology outlives the connection that produced it.
func (c *Catalog) Clear() {
	c.install(orderedmap.New[string, *ServiceRecord](), hashmap.New[string, *CharacteristicRecord]())
}

// Services returns a snapshot of the most recent successful discovery, one
// entry per service in discovery order. No radio I/O.
func (c *Catalog) Services() []ServiceRecord {
	c.mu.RLock()
	table := c.services
	c.mu.RUnlock()

	result := make([]ServiceRecord, 0, table.Len())
	for pair := table.Oldest(); pair != nil; pair = pair.Next() {
		svc := pair.Value
		snap := ServiceRecord{
			UUID:            svc.UUID,
			Primary:         svc.Primary,
			Characteristics: make([]*CharacteristicRecord, 0, len(svc.Characteristics)),
		}
		for _, ch := range svc.Characteristics {
			char := *ch
			char.Descriptors = append([]string(nil), ch.Descriptors...)
			snap.Characteristics = append(snap.Characteristics, &char)
		}
		result = append(result, snap)
	}
	return result
}

// Lookup resolves a characteristic by (service, characteristic) UUID pair.
// Returns a NotFoundError naming the missing level of the hierarchy.
func (c *Catalog) Lookup(serviceUUID, characteristicUUID string) (*CharacteristicRecord, error) {
	key := NewCharacteristicKey(serviceUUID, characteristicUUID)

	c.mu.RLock()
	table := c.services
	index := c.index
	c.mu.RUnlock()

	if char, ok := index.Get(key.String()); ok {
		return char, nil
	}
	if _, ok := table.Get(key.Service); !ok {
		return nil, &NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, characteristicUUID}}
}

// Len returns the number of catalogued services.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services.Len()
}

func (c *Catalog) install(table *orderedmap.OrderedMap[string, *ServiceRecord], index *hashmap.Map[string, *CharacteristicRecord]) {
	c.mu.Lock()
	c.services = table
	c.index = index
	c.mu.Unlock()
}
