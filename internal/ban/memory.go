// Package ban keeps the global ban list consulted by the clan registry.
package ban

import (
	"context"
	"sync"
)

// MemoryList is a process-local ban list, used when Redis is not configured.
type MemoryList struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewMemoryList creates an empty ban list.
func NewMemoryList() *MemoryList {
	return &MemoryList{names: make(map[string]struct{})}
}

// Ban adds name.
func (l *MemoryList) Ban(_ context.Context, name string) error {
	if name == "" {
		return nil
	}
	l.mu.Lock()
	l.names[name] = struct{}{}
	l.mu.Unlock()
	return nil
}

// Unban removes name.
func (l *MemoryList) Unban(_ context.Context, name string) error {
	l.mu.Lock()
	delete(l.names, name)
	l.mu.Unlock()
	return nil
}

// IsBanned reports whether name is banned.
func (l *MemoryList) IsBanned(_ context.Context, name string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.names[name]
	return ok, nil
}
