package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore is an in-memory ObjectStore for tests and local development.
// Individual keys can be primed to fail so partial-failure paths in the
// lifecycle engine can be exercised.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object
	data    map[string][]byte

	failDelete map[string]bool
	failUpload map[string]bool

	deleteCalls []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:    make(map[string]Object),
		data:       make(map[string][]byte),
		failDelete: make(map[string]bool),
		failUpload: make(map[string]bool),
	}
}

// FailDelete makes Delete return an error for the given keys.
func (m *MemoryStore) FailDelete(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.failDelete[k] = true
	}
}

// UnfailDelete clears a primed delete failure for the given keys.
func (m *MemoryStore) UnfailDelete(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.failDelete, k)
	}
}

// FailUpload makes Upload return an error for the given keys.
func (m *MemoryStore) FailUpload(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.failUpload[k] = true
	}
}

// Upload stores the object bytes under key.
func (m *MemoryStore) Upload(ctx context.Context, key string, r io.Reader, opts UploadOptions) (Object, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpload[key] {
		return Object{}, fmt.Errorf("upload %s: simulated storage failure", key)
	}
	obj := Object{
		Key:         key,
		URL:         "memory://" + key,
		FileName:    opts.FileName,
		ContentType: opts.ContentType,
		Size:        int64(len(b)),
	}
	m.objects[key] = obj
	m.data[key] = b
	return obj, nil
}

// Delete removes the object under key. Deleting an absent key succeeds.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, key)
	if m.failDelete[key] {
		return fmt.Errorf("delete %s: simulated storage failure", key)
	}
	delete(m.objects, key)
	delete(m.data, key)
	return nil
}

// Exists reports whether an object is currently stored under key.
func (m *MemoryStore) Exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// DeleteCalls returns the keys Delete has been invoked with, in order,
// including calls that failed.
func (m *MemoryStore) DeleteCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleteCalls))
	copy(out, m.deleteCalls)
	return out
}
