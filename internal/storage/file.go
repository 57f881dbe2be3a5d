package storage

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/emberdb/ember/internal/errkind"
)

// FileBackend is a Storage implementation backed by a real directory.
// Writers go to "<name>.tmp" and are renamed into place on Close, giving
// atomic installation even if the process crashes mid-write.
type FileBackend struct {
	root string
}

// NewFileBackend opens (creating if necessary) a directory as a Storage.
func NewFileBackend(root string) (*FileBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Io, "file.new", err)
	}
	return &FileBackend{root: root}, nil
}

func (f *FileBackend) path(name string) string { return filepath.Join(f.root, name) }

func (f *FileBackend) OpenInput(name string) (Input, error) {
	file, err := os.Open(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.NotFound, "file.open_input", name)
		}
		return nil, errkind.Wrap(errkind.Io, "file.open_input", err)
	}
	return file, nil
}

func (f *FileBackend) CreateOutput(name string) (Output, error) {
	tmpPath := f.path(name) + ".tmp"
	if err := os.MkdirAll(filepath.Dir(tmpPath), 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Io, "file.create_output", err)
	}
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.Io, "file.create_output", err)
	}
	return &fileOutput{file: file, tmpPath: tmpPath, finalPath: f.path(name)}, nil
}

func (f *FileBackend) Exists(name string) (bool, error) {
	_, err := os.Stat(f.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errkind.Wrap(errkind.Io, "file.exists", err)
}

func (f *FileBackend) List() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.Io, "file.list", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileBackend) Delete(name string) error {
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return errkind.Wrap(errkind.Io, "file.delete", err)
	}
	return nil
}

func (f *FileBackend) Rename(oldName, newName string) error {
	if err := os.Rename(f.path(oldName), f.path(newName)); err != nil {
		return errkind.Wrap(errkind.Io, "file.rename", err)
	}
	return nil
}

type fileOutput struct {
	file      *os.File
	tmpPath   string
	finalPath string
	closed    bool
}

func (o *fileOutput) Write(p []byte) (int, error) { return o.file.Write(p) }

func (o *fileOutput) Sync() error {
	return o.file.Sync()
}

func (o *fileOutput) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if err := o.file.Sync(); err != nil {
		o.file.Close()
		os.Remove(o.tmpPath)
		return errkind.Wrap(errkind.Io, "file.close", err)
	}
	if err := o.file.Close(); err != nil {
		os.Remove(o.tmpPath)
		return errkind.Wrap(errkind.Io, "file.close", err)
	}
	if err := os.Rename(o.tmpPath, o.finalPath); err != nil {
		return errkind.Wrap(errkind.Io, "file.close", err)
	}
	return nil
}

var _ Storage = (*FileBackend)(nil)
