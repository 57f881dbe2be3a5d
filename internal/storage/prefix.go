package storage

import "strings"

// Prefixed composes a namespace-isolated view on top of a Storage backend,
// so multiple subsystems (lexical segments, vector segments, the document
// store, the WAL) can share one backend without name collisions.
type Prefixed struct {
	inner  Storage
	prefix string
}

// NewPrefixed returns a view of inner where every name is transparently
// namespaced under prefix (e.g. "vectors/title/").
func NewPrefixed(inner Storage, prefix string) *Prefixed {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Prefixed{inner: inner, prefix: prefix}
}

func (p *Prefixed) full(name string) string { return p.prefix + name }

func (p *Prefixed) OpenInput(name string) (Input, error) { return p.inner.OpenInput(p.full(name)) }

func (p *Prefixed) CreateOutput(name string) (Output, error) {
	return p.inner.CreateOutput(p.full(name))
}

func (p *Prefixed) Exists(name string) (bool, error) { return p.inner.Exists(p.full(name)) }

func (p *Prefixed) List() ([]string, error) {
	all, err := p.inner.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, n := range all {
		if trimmed, ok := strings.CutPrefix(n, p.prefix); ok {
			names = append(names, trimmed)
		}
	}
	return names, nil
}

func (p *Prefixed) Delete(name string) error { return p.inner.Delete(p.full(name)) }

func (p *Prefixed) Rename(oldName, newName string) error {
	return p.inner.Rename(p.full(oldName), p.full(newName))
}

var _ Storage = (*Prefixed)(nil)
