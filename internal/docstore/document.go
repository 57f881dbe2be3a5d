package docstore

import "github.com/emberdb/ember/internal/value"

// Document is a mapping from unique field name to DataValue plus an
// optional external string id (§3). It is created by the caller, owned by
// the DocumentStore after ingest, and destroyed by delete/compact.
type Document struct {
	ExternalID string
	Fields     map[string]value.Value
}

// New creates an empty document with the given external id (may be "").
func New(externalID string) *Document {
	return &Document{ExternalID: externalID, Fields: make(map[string]value.Value)}
}

// Set assigns a field value, overwriting any prior value for that name.
func (d *Document) Set(field string, v value.Value) {
	d.Fields[field] = v
}

// Get returns the value stored at field, and whether it was present.
func (d *Document) Get(field string) (value.Value, bool) {
	v, ok := d.Fields[field]
	return v, ok
}

// Clone returns a deep-enough copy safe to mutate independently; DataValue
// itself is immutable so only the field map needs copying.
func (d *Document) Clone() *Document {
	cp := New(d.ExternalID)
	for k, v := range d.Fields {
		cp.Fields[k] = v
	}
	return cp
}
