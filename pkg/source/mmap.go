package source

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mapped is a ByteSource backed by a read-only shared memory mapping of a
// file.
type Mapped struct {
	path string
	data []byte
}

// Map maps path into memory read-only. An empty file yields an empty
// region without a mapping.
func Map(path string) (*Mapped, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrOpen, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrOpen, path)
	}

	size := info.Size()
	if size == 0 {
		return &Mapped{path: path}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%w: %s is too large to map (%d bytes)", ErrOpen, path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s: %w", ErrOpen, path, err)
	}
	// Workers walk the region front to back.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return &Mapped{path: path, data: data}, nil
}

// Path returns the mapped file's path.
func (m *Mapped) Path() string { return m.path }

// Bytes returns the mapped region.
func (m *Mapped) Bytes() []byte { return m.data }

// Len returns the region size.
func (m *Mapped) Len() int { return len(m.data) }

// Close unmaps the file. Closing twice is a no-op.
func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap %s: %w", m.path, err)
	}
	return nil
}
