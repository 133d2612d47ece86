// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"strings"
	"sync"
)

// =============================================================================
// KV INTERFACE
// =============================================================================

// KV is durable key-value storage.
type KV interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) ([]byte, bool, error)

	// Write applies a batch atomically. A nil value deletes its key.
	Write(batch map[string][]byte) error

	// Close releases the storage.
	Close() error
}

// Backend names.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Backends lists the supported backend names.
var Backends = []string{BackendFile, BackendBolt, BackendSQLite, BackendMemory}

// OpenKV opens the named backend at path. path is a directory for the file
// backend and a database file for bolt and sqlite; memory ignores it.
func OpenKV(backend, path string) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileKV(path)
	case BackendBolt:
		return NewBoltKV(path)
	case BackendSQLite:
		return NewSQLiteKV(path)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryKV is a KV held in process memory.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Write implements KV.
func (m *MemoryKV) Write(batch map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range batch {
		if v == nil {
			delete(m.data, k)
			continue
		}
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error {
	return nil
}

// Keys returns the number of stored keys.
func (m *MemoryKV) Keys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
