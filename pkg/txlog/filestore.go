// filestore.go provides memory-mapped persistence for one transaction log
// file.
//
// The on-disk layout is the wire layout: the 32-byte file header (see
// log.go) followed by transaction records. The header's reserved word
// tracks the used size so a reopened file knows where appends resume. The
// OS flushes dirty pages asynchronously, so append performance stays close
// to pure in-memory operation.

package txlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	fileStoreInitialSize  = 64 * 1024
	fileStoreGrowthFactor = 2

	// The used-size word lives in the file header's reserved tail.
	fileStoreUsedOffset = 28
)

// FileStore persists one transaction log file through a memory mapping.
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	data   []byte
	size   uint64
	used   uint64 // FileHeaderSize + record bytes
	hdr    FileHeader
	dirty  bool
	closed bool
}

// CreateFileStore creates a new log file at path with the given header.
func CreateFileStore(path string, hdr FileHeader) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	if err := f.Truncate(fileStoreInitialSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate log: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, fileStoreInitialSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap log: %w", err)
	}

	s := &FileStore{
		path: path,
		file: f,
		data: data,
		size: fileStoreInitialSize,
		used: FileHeaderSize,
		hdr:  hdr,
	}
	s.writeFileHeaderLocked()
	return s, nil
}

// OpenFileStore opens and validates an existing log file.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log: %w", err)
	}
	size := uint64(info.Size())
	if size < FileHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s: truncated", ErrCorrupted, path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap log: %w", err)
	}

	hdr, err := decodeFileHeader(data)
	if err != nil {
		_ = unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	used := uint64(binary.LittleEndian.Uint32(data[fileStoreUsedOffset:]))
	if used < FileHeaderSize || used > size {
		_ = unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%w: %s: bad used size %d", ErrCorrupted, path, used)
	}

	return &FileStore{
		path: path,
		file: f,
		data: data,
		size: size,
		used: used,
		hdr:  hdr,
	}, nil
}

// LoadFile returns the store's contents as an in-memory File wired back to
// the store, so later appends to the File persist through it.
func (s *FileStore) LoadFile() *File {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, s.used-FileHeaderSize)
	copy(buf, s.data[FileHeaderSize:s.used])
	return &File{Hdr: s.hdr, Buf: buf, store: s}
}

// append writes one already-framed transaction entry.
func (s *FileStore) append(entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.ensureSpace(uint64(len(entry))); err != nil {
		return err
	}
	copy(s.data[s.used:], entry)
	s.used += uint64(len(entry))
	s.writeFileHeaderLocked()
	s.dirty = true
	return nil
}

// writeFileHeader persists an updated file header (e.g. max tail offset).
func (s *FileStore) writeFileHeader(hdr FileHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.hdr = hdr
	s.writeFileHeaderLocked()
	s.dirty = true
}

func (s *FileStore) writeFileHeaderLocked() {
	s.hdr.encode(s.data)
	binary.LittleEndian.PutUint32(s.data[fileStoreUsedOffset:], uint32(s.used))
}

// Sync forces pending writes to disk. Uses async semantics; the data is in
// the mapping already so it survives a process crash either way.
func (s *FileStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.dirty {
		return nil
	}
	if err := unix.Msync(s.data, unix.MS_ASYNC); err != nil {
		return fmt.Errorf("msync log: %w", err)
	}
	s.dirty = false
	return nil
}

// Close syncs and releases the mapping.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.data != nil {
		_ = unix.Msync(s.data, unix.MS_SYNC)
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("munmap log: %w", err)
		}
		s.data = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("close log: %w", err)
		}
		s.file = nil
	}
	return nil
}

func (s *FileStore) ensureSpace(needed uint64) error {
	if s.used+needed <= s.size {
		return nil
	}

	newSize := s.size * fileStoreGrowthFactor
	for s.used+needed > newSize {
		newSize *= fileStoreGrowthFactor
	}

	if err := unix.Munmap(s.data); err != nil {
		return fmt.Errorf("munmap log: %w", err)
	}
	if err := s.file.Truncate(int64(newSize)); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	data, err := unix.Mmap(int(s.file.Fd()), 0, int(newSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap log: %w", err)
	}
	s.data = data
	s.size = newSize
	return nil
}

// OpenFileLog loads a chain of log files into a Log, sorted by file seq.
func OpenFileLog(paths ...string) (*Log, []*FileStore, error) {
	var (
		files  []*File
		stores []*FileStore
	)
	for _, p := range paths {
		s, err := OpenFileStore(p)
		if err != nil {
			for _, prev := range stores {
				_ = prev.Close()
			}
			return nil, nil, err
		}
		stores = append(stores, s)
		files = append(files, s.LoadFile())
	}
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j-1].Hdr.FileSeq > files[j].Hdr.FileSeq; j-- {
			files[j-1], files[j] = files[j], files[j-1]
		}
	}
	return &Log{Files: files}, stores, nil
}
