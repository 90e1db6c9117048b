package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/marciocardozodev/oficina-billing/internal/billing/domain"
)

// InMemoryCache é o fallback quando o Redis está fora: mesmo contrato,
// mapa local com expiração preguiçosa. Serializa em JSON para manter a
// semântica de cópia do adapter Redis.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	raw    []byte
	expira time.Time
}

var _ domain.BudgetCache = (*InMemoryCache)(nil)

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]inMemoryEntry)}
}

func (c *InMemoryCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(e.expira) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(e.raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, val interface{}, ttlSecs int) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = inMemoryEntry{raw: raw, expira: time.Now().Add(time.Duration(ttlSecs) * time.Second)}
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
