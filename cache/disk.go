package cache

import (
	"os"
	"path/filepath"
)

// Disk stores one file per key in a flat directory. It is never evicted.
type Disk struct {
	root string
}

// NewDisk creates the directory when needed.
func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Disk{root: root}, nil
}

// Root is the cache directory.
func (d *Disk) Root() string {
	return d.root
}

// Get implements Cache. Any read failure is a miss.
func (d *Disk) Get(key string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(d.root, key))
	if err != nil {
		return nil, ErrCacheMiss
	}
	return body, nil
}

// Set implements Cache. The entry is written aside then renamed, readers see
// either nothing or the whole file.
func (d *Disk) Set(key string, body []byte) error {
	return WriteFile(filepath.Join(d.root, key), body)
}

// WriteFile atomically replaces the file at path.
func WriteFile(path string, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err = f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err = f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err = os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}

	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}
