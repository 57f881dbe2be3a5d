// Package storage is a keyed byte-stream abstraction over a directory-like
// namespace (§4.1). It exposes directory-level operations (list, exists,
// delete, rename), read streams (Input) and write streams (Output), with
// atomic file installation for writers: writes go to "<name>.tmp", sync,
// then rename over the target.
package storage

import "io"

// Input is a seekable read stream returned by OpenInput.
type Input interface {
	io.ReadSeekCloser
}

// Output is an appendable write stream returned by CreateOutput.
type Output interface {
	io.WriteCloser
	Sync() error
}

// Storage is the abstraction every on-disk format in Ember is built on.
// Two concrete backends are provided: Memory and File.
type Storage interface {
	// OpenInput opens name for reading. Returns errkind.NotFound if absent.
	OpenInput(name string) (Input, error)

	// CreateOutput opens name for writing, truncating any prior content.
	// Implementations write to a temporary name and atomically rename it
	// into place on Output.Close.
	CreateOutput(name string) (Output, error)

	// Exists reports whether name is present.
	Exists(name string) (bool, error)

	// List returns all names directly present in the storage namespace.
	List() ([]string, error)

	// Delete removes name. Deleting a missing name is not an error.
	Delete(name string) error

	// Rename atomically replaces newName's content with oldName's,
	// removing oldName. Rename-over-existing is atomic from a reader's
	// point of view: a reader either sees the old or the new content,
	// never a partial file.
	Rename(oldName, newName string) error
}
