//go:build unix

package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps path read-only for its entire length. An empty file maps to a
// File with a nil, zero-length byte slice rather than failing: mmap of a
// zero-length region is undefined on most platforms, so it is simply
// skipped.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if size == 0 {
		return &File{f: f, size: 0}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmapfile: mmap %q: %w", path, err)
	}
	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &File{f: f, data: data, size: size}, nil
}

// Close unmaps the file and releases the underlying file descriptor.
func (m *File) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
