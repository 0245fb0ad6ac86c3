package engine

import (
	"sync"

	"github.com/mt5tools/copier/internal/broker"
)

// FillingCache remembers, per slave symbol, the last filling mode the
// broker accepted, so later deals on the symbol execute in a single
// round-trip instead of re-running discovery. Entries are written on DONE
// and invalidated on INVALID_FILL; the cache is not persisted across
// restarts.
type FillingCache struct {
	mu    sync.Mutex
	modes map[string]broker.FillingMode
}

// NewFillingCache creates an empty filling-mode cache.
func NewFillingCache() *FillingCache {
	return &FillingCache{modes: make(map[string]broker.FillingMode)}
}

// Get returns the cached mode for a symbol.
func (c *FillingCache) Get(symbol string) (broker.FillingMode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mode, ok := c.modes[symbol]
	return mode, ok
}

// Put records a broker-accepted mode for a symbol.
func (c *FillingCache) Put(symbol string, mode broker.FillingMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes[symbol] = mode
}

// Invalidate drops a symbol's entry after an INVALID_FILL rejection.
func (c *FillingCache) Invalidate(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.modes, symbol)
}

// Len returns the number of cached symbols.
func (c *FillingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modes)
}
