package document

import (
	"errors"
	"os"
	"path/filepath"
)

// LoadFile reads path into a new Buffer backed by it.
func LoadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Buffer{text: string(data), path: path}, nil
}

// Save writes the text to the backing file. The write is atomic: the text goes to a temporary file in the same directory, which is then renamed over the
// target. The target's permissions are kept.
func (b *Buffer) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.path == "" {
		return errors.New("document: buffer has no backing file")
	}
	if err := writeFileAtomic(b.path, []byte(b.text)); err != nil {
		return err
	}
	b.saved = b.version
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
