package events

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Descriptor is the untyped view of a Definition.
type Descriptor interface {
	Name() string
	Prototype() any
}

// Catalog is the application's closed vocabulary of event types.
type Catalog struct {
	mu      sync.RWMutex
	entries *orderedmap.OrderedMap[string, Descriptor]
}

// NewCatalog creates a catalog holding the given definitions.
// It panics on duplicate names, which is a programming error.
func NewCatalog(defs ...Descriptor) *Catalog {
	c := &Catalog{entries: orderedmap.New[string, Descriptor]()}
	if err := c.Register(defs...); err != nil {
		panic(err)
	}
	return c
}

// Register adds definitions to the catalog.
func (c *Catalog) Register(defs ...Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, def := range defs {
		if def.Name() == "" {
			return fmt.Errorf("event type name is required")
		}
		if _, exists := c.entries.Get(def.Name()); exists {
			return fmt.Errorf("event type '%s' already registered", def.Name())
		}
		c.entries.Set(def.Name(), def)
	}
	return nil
}

// Lookup returns the descriptor registered for name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries.Get(name)
}

// Has reports whether name belongs to the vocabulary.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Descriptors returns the registered definitions in registration order.
func (c *Catalog) Descriptors() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Descriptor, 0, c.entries.Len())
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}
