// Observation context: the data a single observation carries through its handlers
// Handlers keep their per-observation state here instead of in shared maps
package observation

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Context holds the identity, key values and handler state of one observation.
// Safe for concurrent use.
type Context struct {
	ID             uuid.UUID
	Name           string
	ContextualName string
	Parent         Observation

	null bool

	mu     sync.RWMutex
	low    []attribute.KeyValue
	high   []attribute.KeyValue
	err    error
	scopes int
	values map[any]any
}

func newContext(name string) *Context {
	return &Context{
		ID:     uuid.New(),
		Name:   name,
		values: make(map[any]any),
	}
}

// IsNull reports whether the context belongs to a null observation.
// Handlers are expected to skip null contexts.
func (c *Context) IsNull() bool {
	return c.null
}

// DisplayName returns the contextual name if set, otherwise the name.
func (c *Context) DisplayName() string {
	if c.ContextualName != "" {
		return c.ContextualName
	}
	return c.Name
}

// AddLowCardinality appends bounded key values (safe for metric dimensions).
func (c *Context) AddLowCardinality(kvs ...attribute.KeyValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.low = append(c.low, kvs...)
}

// AddHighCardinality appends unbounded key values (span attributes only).
func (c *Context) AddHighCardinality(kvs ...attribute.KeyValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.high = append(c.high, kvs...)
}

// LowCardinality returns a copy of the low cardinality key values.
func (c *Context) LowCardinality() []attribute.KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.low)
}

// HighCardinality returns a copy of the high cardinality key values.
func (c *Context) HighCardinality() []attribute.KeyValue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.high)
}

// SetError records the most recent error signalled on the observation.
func (c *Context) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Err returns the most recent error signalled on the observation, or nil.
func (c *Context) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// OpenScopes returns the number of the observation's scopes that are open.
// Handlers see the count as it will be once the signal they receive is accepted.
func (c *Context) OpenScopes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scopes
}

func (c *Context) addScopes(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopes += n
}

// Put stores a handler value under key.
func (c *Context) Put(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the handler value stored under key, or nil.
func (c *Context) Get(key any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetOrPut returns the value under key, storing newValue() first if absent.
// newValue runs under the context lock and must not call back into the context.
func (c *Context) GetOrPut(key any, newValue func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	v := newValue()
	c.values[key] = v
	return v
}
