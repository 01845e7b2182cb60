// indexfile.go reads and writes the on-disk form of a mailbox index.
//
// File Format:
//
//	Preamble (8 bytes):
//	  - Magic: "MIDX" (4 bytes)
//	  - Version: uint16
//	  - Reserved: uint16
//
//	Header mirror (header_size bytes):
//	  - The serialized base header (see header.go) followed by the
//	    registered extension header regions, byte for byte the map's
//	    HdrCopyBuf.
//
//	Extension directory:
//	  - Count: uint32, then per extension:
//	    reset_id, hdr_offset, hdr_size, record_offset, record_size,
//	    record_align, name_size (uint32 each), name bytes, 4-byte padded.
//
//	Keyword directory:
//	  - Count: uint32, then per keyword: name_size uint32, name bytes,
//	    4-byte padded.
//
//	Records:
//	  - messages_count records of record_size bytes each.
//
// A map read with mmap residence aliases the mapped record region directly;
// the sync driver writes the header mirror back into the mapping at the end
// of a successful sync.

package mailindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	indexFileMagic    = "MIDX"
	indexFileVersion  = uint16(1)
	indexFilePreamble = 8
)

var (
	// ErrBadIndexFile is returned when the index file fails validation.
	ErrBadIndexFile = fmt.Errorf("mailindex: bad index file")
)

// IndexFile is an open, memory-mapped index file.
type IndexFile struct {
	path string
	file *os.File
	data []byte
}

// OpenIndexFile opens and maps an existing index file read-write.
func OpenIndexFile(path string) (*IndexFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat index: %w", err)
	}
	if info.Size() < indexFilePreamble+BaseHeaderSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s: truncated", ErrBadIndexFile, path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap index: %w", err)
	}
	if string(data[0:4]) != indexFileMagic {
		_ = unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%w: %s: bad magic", ErrBadIndexFile, path)
	}
	if binary.LittleEndian.Uint16(data[4:6]) != indexFileVersion {
		_ = unix.Munmap(data)
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported version", ErrBadIndexFile, path)
	}
	return &IndexFile{path: path, file: f, data: data}, nil
}

// ReadMap decodes the file into a Map. With mmapped set, the record map
// buffer aliases the mapping (residence mmap) and any mutation will first
// materialize it into private memory; otherwise everything is copied.
func (f *IndexFile) ReadMap(mmapped bool) (*Map, error) {
	data := f.data
	pos := indexFilePreamble

	var hdr Header
	hdr.Decode(data[pos:])
	if hdr.BaseHeaderSize != BaseHeaderSize ||
		hdr.HeaderSize < hdr.BaseHeaderSize ||
		hdr.RecordSize < BaseRecordSize {
		return nil, fmt.Errorf("%w: %s: bad header geometry", ErrBadIndexFile, f.path)
	}
	if pos+int(hdr.HeaderSize) > len(data) {
		return nil, fmt.Errorf("%w: %s: header past EOF", ErrBadIndexFile, f.path)
	}
	hdrCopy := make([]byte, hdr.HeaderSize)
	copy(hdrCopy, data[pos:pos+int(hdr.HeaderSize)])
	pos += int(hdr.HeaderSize)

	exts, pos, err := f.readExtDir(data, pos, hdr)
	if err != nil {
		return nil, err
	}
	kws, pos, err := f.readKeywordDir(data, pos)
	if err != nil {
		return nil, err
	}

	recBytes := int(hdr.MessagesCount) * int(hdr.RecordSize)
	if pos+recBytes > len(data) {
		return nil, fmt.Errorf("%w: %s: records past EOF", ErrBadIndexFile, f.path)
	}

	rec := NewRecordMap(hdr.RecordSize)
	if mmapped {
		rec.Buffer = data[pos : pos+recBytes : pos+recBytes]
	} else {
		rec.Buffer = make([]byte, recBytes)
		copy(rec.Buffer, data[pos:pos+recBytes])
	}
	rec.RecordsCount = hdr.MessagesCount
	if hdr.MessagesCount > 0 {
		rec.LastAppendedUID = rec.UIDAt(hdr.MessagesCount)
	}

	m := &Map{Header: hdr, HdrCopyBuf: hdrCopy, Rec: rec, refcount: 1}
	if mmapped {
		m.Residence = ResidenceMmap
	}
	m.Extensions = exts
	m.Keywords = kws
	rec.AddMap(m)
	return m, nil
}

func (f *IndexFile) readExtDir(data []byte, pos int, hdr Header) ([]Extension, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("%w: %s: extension directory past EOF", ErrBadIndexFile, f.path)
	}
	count := binary.LittleEndian.Uint32(data[pos:])
	pos += 4

	exts := make([]Extension, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+28 > len(data) {
			return nil, 0, fmt.Errorf("%w: %s: extension entry past EOF", ErrBadIndexFile, f.path)
		}
		le := binary.LittleEndian
		ext := Extension{
			ResetID:      le.Uint32(data[pos:]),
			HdrOffset:    le.Uint32(data[pos+4:]),
			HdrSize:      le.Uint32(data[pos+8:]),
			RecordOffset: le.Uint32(data[pos+12:]),
			RecordSize:   le.Uint32(data[pos+16:]),
			RecordAlign:  le.Uint32(data[pos+20:]),
		}
		nameSize := int(le.Uint32(data[pos+24:]))
		pos += 28
		if pos+nameSize > len(data) {
			return nil, 0, fmt.Errorf("%w: %s: extension name past EOF", ErrBadIndexFile, f.path)
		}
		ext.Name = string(data[pos : pos+nameSize])
		pos += nameSize
		pos = pad4(pos)

		if ext.HdrOffset+ext.HdrSize > hdr.HeaderSize ||
			ext.RecordOffset+ext.RecordSize > hdr.RecordSize {
			return nil, 0, fmt.Errorf("%w: %s: extension %q out of bounds", ErrBadIndexFile, f.path, ext.Name)
		}
		exts = append(exts, ext)
	}
	return exts, pos, nil
}

func (f *IndexFile) readKeywordDir(data []byte, pos int) ([]string, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("%w: %s: keyword directory past EOF", ErrBadIndexFile, f.path)
	}
	count := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if count > MaxKeywords {
		return nil, 0, fmt.Errorf("%w: %s: too many keywords", ErrBadIndexFile, f.path)
	}

	kws := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, 0, fmt.Errorf("%w: %s: keyword entry past EOF", ErrBadIndexFile, f.path)
		}
		nameSize := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if pos+nameSize > len(data) {
			return nil, 0, fmt.Errorf("%w: %s: keyword name past EOF", ErrBadIndexFile, f.path)
		}
		kws = append(kws, string(data[pos:pos+nameSize]))
		pos += nameSize
		pos = pad4(pos)
	}
	return kws, pos, nil
}

// WriteBackHeader copies the map's header mirror into the mapped file and
// schedules an async flush. Called by the sync driver at the end of a
// successful sync when the map is mmap-resident.
func (f *IndexFile) WriteBackHeader(m *Map) error {
	if indexFilePreamble+len(m.HdrCopyBuf) > len(f.data) {
		return fmt.Errorf("%w: %s: header grew past mapping", ErrBadIndexFile, f.path)
	}
	copy(f.data[indexFilePreamble:], m.HdrCopyBuf)
	if err := unix.Msync(f.data, unix.MS_ASYNC); err != nil {
		return fmt.Errorf("msync index: %w", err)
	}
	return nil
}

// Close unmaps and closes the file.
func (f *IndexFile) Close() error {
	if f.data != nil {
		_ = unix.Msync(f.data, unix.MS_SYNC)
		if err := unix.Munmap(f.data); err != nil {
			return fmt.Errorf("munmap index: %w", err)
		}
		f.data = nil
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close index: %w", err)
		}
		f.file = nil
	}
	return nil
}

// WriteMapFile serializes m to path atomically: the file is built under a
// temporary name next to the target and renamed into place.
func WriteMapFile(path string, m *Map) error {
	buf := encodeMapFile(m)
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename index: %w", err)
	}
	return nil
}

func encodeMapFile(m *Map) []byte {
	le := binary.LittleEndian

	// Refresh the base-header mirror before snapshotting it.
	m.Header.Encode(m.HdrCopyBuf)

	size := indexFilePreamble + len(m.HdrCopyBuf)
	size += 4
	for _, ext := range m.Extensions {
		size = pad4(size + 28 + len(ext.Name))
	}
	size += 4
	for _, kw := range m.Keywords {
		size = pad4(size + 4 + len(kw))
	}
	recBytes := int(m.Header.MessagesCount) * int(m.Header.RecordSize)
	size += recBytes

	buf := make([]byte, size)
	copy(buf[0:4], indexFileMagic)
	le.PutUint16(buf[4:6], indexFileVersion)
	pos := indexFilePreamble

	copy(buf[pos:], m.HdrCopyBuf)
	pos += len(m.HdrCopyBuf)

	le.PutUint32(buf[pos:], uint32(len(m.Extensions)))
	pos += 4
	for _, ext := range m.Extensions {
		le.PutUint32(buf[pos:], ext.ResetID)
		le.PutUint32(buf[pos+4:], ext.HdrOffset)
		le.PutUint32(buf[pos+8:], ext.HdrSize)
		le.PutUint32(buf[pos+12:], ext.RecordOffset)
		le.PutUint32(buf[pos+16:], ext.RecordSize)
		le.PutUint32(buf[pos+20:], ext.RecordAlign)
		le.PutUint32(buf[pos+24:], uint32(len(ext.Name)))
		pos += 28
		copy(buf[pos:], ext.Name)
		pos = pad4(pos + len(ext.Name))
	}

	le.PutUint32(buf[pos:], uint32(len(m.Keywords)))
	pos += 4
	for _, kw := range m.Keywords {
		le.PutUint32(buf[pos:], uint32(len(kw)))
		pos += 4
		copy(buf[pos:], kw)
		pos = pad4(pos + len(kw))
	}

	copy(buf[pos:], m.Rec.Buffer[:recBytes])
	return buf
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
