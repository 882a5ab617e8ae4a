//go:build !unix

package mmapfile

import "os"

// Open reads path fully into memory. Platforms without a unix mmap syscall
// fall back to a plain read; the File interface is identical either way,
// it just forgoes the zero-copy, page-cache-backed benefit of mmap.
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
	data := make([]byte, stat.Size())
	if _, err := f.ReadAt(data, 0); err != nil && stat.Size() > 0 {
		f.Close()
		return nil, err
	}
	return &File{f: f, data: data, size: stat.Size()}, nil
}

// Close releases the underlying file descriptor.
func (m *File) Close() error {
	return m.f.Close()
}
