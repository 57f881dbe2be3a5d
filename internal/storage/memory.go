package storage

import (
	"bytes"
	"sync"

	"github.com/emberdb/ember/internal/errkind"
)

// MemoryBackend is an in-memory Storage implementation, used for tests and
// for ephemeral indexes that never touch disk.
type MemoryBackend struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{files: make(map[string][]byte)}
}

func (m *MemoryBackend) OpenInput(name string) (Input, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "memory.open_input", name)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return &memoryInput{r: bytes.NewReader(cp)}, nil
}

func (m *MemoryBackend) CreateOutput(name string) (Output, error) {
	return &memoryOutput{backend: m, name: name}, nil
}

func (m *MemoryBackend) Exists(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[name]
	return ok, nil
}

func (m *MemoryBackend) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	return names, nil
}

func (m *MemoryBackend) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *MemoryBackend) Rename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldName]
	if !ok {
		return errkind.New(errkind.NotFound, "memory.rename", oldName)
	}
	m.files[newName] = data
	delete(m.files, oldName)
	return nil
}

func (m *MemoryBackend) install(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
}

type memoryInput struct {
	r *bytes.Reader
}

func (i *memoryInput) Read(p []byte) (int, error)               { return i.r.Read(p) }
func (i *memoryInput) Seek(off int64, whence int) (int64, error) { return i.r.Seek(off, whence) }
func (i *memoryInput) Close() error                              { return nil }

// memoryOutput buffers writes and installs them atomically on Close, the
// same tmp-then-rename discipline the file backend uses, kept here so both
// backends give readers the same all-or-nothing visibility guarantee.
type memoryOutput struct {
	backend *MemoryBackend
	name    string
	buf     bytes.Buffer
	closed  bool
}

func (o *memoryOutput) Write(p []byte) (int, error) { return o.buf.Write(p) }
func (o *memoryOutput) Sync() error                 { return nil }

func (o *memoryOutput) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	data := make([]byte, o.buf.Len())
	copy(data, o.buf.Bytes())
	o.backend.install(o.name, data)
	return nil
}

var _ Storage = (*MemoryBackend)(nil)
