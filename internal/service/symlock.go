package service

import (
	"strings"
	"sync"
)

// SymbolLocks serializes work per symbol so the intake pipeline and the
// trade monitor cannot both act on the same symbol's position state at once,
// while unrelated symbols proceed in parallel. Locks are created on first
// use and never reclaimed; the symbol universe is small.
type SymbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSymbolLocks() *SymbolLocks {
	return &SymbolLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the symbol's lock and returns the unlock func.
func (l *SymbolLocks) Lock(symbol string) func() {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	l.mu.Lock()
	m, ok := l.locks[symbol]
	if !ok {
		m = &sync.Mutex{}
		l.locks[symbol] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
