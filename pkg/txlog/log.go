package txlog

import (
	"encoding/binary"
	"fmt"
)

const (
	logFileMagic   = "MTXL"
	logFileVersion = uint16(1)

	// FileHeaderSize is the on-disk size of a log file header. Record
	// offsets are absolute file offsets, so the first record of every file
	// sits at FileHeaderSize.
	FileHeaderSize = 32
)

// FileHeader identifies one transaction log file and chains it to its
// predecessor. A head file with PrevFileSeq == 0 and FileSeq > 1 marks a
// log reset: the older files were discarded and maps synced against them
// must be rebuilt.
type FileHeader struct {
	IndexID        uint32
	FileSeq        uint32
	PrevFileSeq    uint32
	PrevFileOffset uint32
	MaxTailOffset  uint32
}

func (h *FileHeader) encode(buf []byte) {
	le := binary.LittleEndian
	copy(buf[0:4], logFileMagic)
	le.PutUint16(buf[4:6], logFileVersion)
	le.PutUint16(buf[6:8], FileHeaderSize)
	le.PutUint32(buf[8:], h.IndexID)
	le.PutUint32(buf[12:], h.FileSeq)
	le.PutUint32(buf[16:], h.PrevFileSeq)
	le.PutUint32(buf[20:], h.PrevFileOffset)
	le.PutUint32(buf[24:], h.MaxTailOffset)
}

func decodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("%w: truncated file header", ErrCorrupted)
	}
	if string(buf[0:4]) != logFileMagic {
		return FileHeader{}, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	le := binary.LittleEndian
	if le.Uint16(buf[4:6]) != logFileVersion {
		return FileHeader{}, ErrVersionMismatch
	}
	if le.Uint16(buf[6:8]) != FileHeaderSize {
		return FileHeader{}, fmt.Errorf("%w: bad header size", ErrCorrupted)
	}
	return FileHeader{
		IndexID:        le.Uint32(buf[8:]),
		FileSeq:        le.Uint32(buf[12:]),
		PrevFileSeq:    le.Uint32(buf[16:]),
		PrevFileOffset: le.Uint32(buf[20:]),
		MaxTailOffset:  le.Uint32(buf[24:]),
	}, nil
}

// File is one transaction log file held in memory, optionally backed by an
// on-disk store that every append is mirrored to.
type File struct {
	Hdr FileHeader
	Buf []byte // records region; absolute offsets = FileHeaderSize + index

	store *FileStore
}

// Size returns the file's total size, the offset one past its last record.
func (f *File) Size() uint32 {
	return FileHeaderSize + uint32(len(f.Buf))
}

// Append writes one transaction (outer header + payload, padded to 4) and
// returns the absolute offset the transaction starts at.
func (f *File) Append(t RecordType, payload []byte) (uint32, error) {
	start := f.Size()
	hdr := RecordHeader{Type: t, Size: uint32(len(payload))}

	entry := make([]byte, RecordHeaderSize+Pad4(uint32(len(payload))))
	hdr.encode(entry)
	copy(entry[RecordHeaderSize:], payload)

	if f.store != nil {
		if err := f.store.append(entry); err != nil {
			return 0, err
		}
	}
	f.Buf = append(f.Buf, entry...)
	return start, nil
}

// SetMaxTailOffset raises the file's recorded max tail offset; writers call
// it after committing internal transactions so syncs can skip ahead.
func (f *File) SetMaxTailOffset(offset uint32) {
	if offset > f.Hdr.MaxTailOffset {
		f.Hdr.MaxTailOffset = offset
		if f.store != nil {
			f.store.writeFileHeader(f.Hdr)
		}
	}
}

// Log is an ordered chain of transaction log files for one mailbox. The
// last file is the head; all appends go there.
type Log struct {
	Files []*File
}

// NewMemoryLog creates a log with a single empty head file (seq 1), not
// backed by any store. Tests and in-memory indexes use this.
func NewMemoryLog(indexID uint32) *Log {
	return &Log{Files: []*File{{
		Hdr: FileHeader{IndexID: indexID, FileSeq: 1},
	}}}
}

// Head returns the current head file.
func (l *Log) Head() *File {
	return l.Files[len(l.Files)-1]
}

// HeadPos returns the position one past the last record of the head file.
func (l *Log) HeadPos() (seq, offset uint32) {
	h := l.Head()
	return h.Hdr.FileSeq, h.Size()
}

// Append appends one transaction to the head file.
func (l *Log) Append(t RecordType, payload []byte) (uint32, error) {
	return l.Head().Append(t, payload)
}

// Rotate starts a new head file. With reset set, the old files are dropped
// from the chain and the new head carries PrevFileSeq == 0, which readers
// interpret as "everything before this point is gone, rebuild".
func (l *Log) Rotate(reset bool) *File {
	head := l.Head()
	next := &File{Hdr: FileHeader{
		IndexID: head.Hdr.IndexID,
		FileSeq: head.Hdr.FileSeq + 1,
	}}
	if reset {
		l.Files = []*File{next}
	} else {
		next.Hdr.PrevFileSeq = head.Hdr.FileSeq
		next.Hdr.PrevFileOffset = head.Size()
		l.Files = append(l.Files, next)
	}
	return next
}

func (l *Log) fileBySeq(seq uint32) *File {
	for _, f := range l.Files {
		if f.Hdr.FileSeq == seq {
			return f
		}
	}
	return nil
}

func (l *Log) fileAfter(f *File) *File {
	for i, g := range l.Files {
		if g == f && i+1 < len(l.Files) {
			return l.Files[i+1]
		}
	}
	return nil
}
