// Package pricecache keeps the last known price per symbol.
package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is a cached price with the time it was observed.
type Entry struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"ts"`
}

// Memory is a process-local cache. Last write wins per symbol.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Set(_ context.Context, symbol string, e Entry) error {
	m.mu.Lock()
	m.entries[symbol] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, symbol string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[symbol]
	m.mu.RUnlock()
	return e, ok, nil
}
