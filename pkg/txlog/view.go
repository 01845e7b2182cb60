package txlog

import "fmt"

// View is a cursor over the log. The sync driver positions it once with
// Set, then pulls transactions with Next until done. PrevPos tracks the
// start offset of the transaction most recently returned; once Next has
// reported done, PrevPos is the end-of-log position.
type View struct {
	log *Log

	cur       *File
	curOffset uint32 // absolute offset of the next record to return

	maxSeq    uint32
	maxOffset uint32

	prevSeq    uint32
	prevOffset uint32
}

// NewView opens a cursor over l. Call Set before Next.
func (l *Log) NewView() *View {
	return &View{log: l}
}

// Set positions the view at (fileSeq, offset), iterating up to (maxSeq,
// maxOffset) exclusive. fileSeq 0 means the beginning of the log.
//
// Returns reset=true when the requested position predates a log reset: the
// caller's map is stale beyond repair and must be rebuilt from the head
// file, where the view has been positioned. A position that is simply gone
// (log files rotated away without a reset) returns ErrLostLog with a
// human-readable reason.
func (v *View) Set(fileSeq, offset, maxSeq, maxOffset uint32) (reset bool, reason string, err error) {
	v.maxSeq = maxSeq
	v.maxOffset = maxOffset

	if fileSeq == 0 {
		v.cur = v.log.Files[0]
		v.curOffset = FileHeaderSize
		v.prevSeq, v.prevOffset = v.cur.Hdr.FileSeq, v.curOffset
		return false, "", nil
	}

	f := v.log.fileBySeq(fileSeq)
	if f == nil {
		head := v.log.Head()
		if head.Hdr.FileSeq > fileSeq && head.Hdr.PrevFileSeq == 0 {
			// The log was recreated after the caller's position; everything
			// it synced is void.
			v.cur = head
			v.curOffset = FileHeaderSize
			v.prevSeq, v.prevOffset = head.Hdr.FileSeq, v.curOffset
			return true, fmt.Sprintf("log reset, file seq %d recreated as %d",
				fileSeq, head.Hdr.FileSeq), nil
		}
		return false, "", fmt.Errorf("%w: file seq %d not in log", ErrLostLog, fileSeq)
	}

	if offset < FileHeaderSize {
		offset = FileHeaderSize
	}
	if offset > f.Size() {
		return false, "", fmt.Errorf("%w: offset %d past file seq %d size %d",
			ErrLostLog, offset, fileSeq, f.Size())
	}
	v.cur = f
	v.curOffset = offset
	v.prevSeq, v.prevOffset = f.Hdr.FileSeq, offset
	return false, "", nil
}

// Next returns the next transaction. ok=false means the view is done; the
// payload slice aliases the log file buffer and is valid for one iteration.
func (v *View) Next() (hdr RecordHeader, payload []byte, ok bool, err error) {
	for {
		if v.cur == nil {
			return RecordHeader{}, nil, false, fmt.Errorf("%w: view not positioned", ErrLostLog)
		}

		if v.maxSeq != 0 &&
			(v.cur.Hdr.FileSeq > v.maxSeq ||
				(v.cur.Hdr.FileSeq == v.maxSeq && v.curOffset >= v.maxOffset)) {
			v.prevSeq, v.prevOffset = v.cur.Hdr.FileSeq, v.curOffset
			return RecordHeader{}, nil, false, nil
		}

		if v.curOffset == v.cur.Size() {
			next := v.log.fileAfter(v.cur)
			if next == nil {
				v.prevSeq, v.prevOffset = v.cur.Hdr.FileSeq, v.curOffset
				return RecordHeader{}, nil, false, nil
			}
			v.cur = next
			v.curOffset = FileHeaderSize
			continue
		}

		if v.cur.Size()-v.curOffset < RecordHeaderSize {
			return RecordHeader{}, nil, false, fmt.Errorf(
				"%w: truncated record header at seq %d offset %d",
				ErrCorrupted, v.cur.Hdr.FileSeq, v.curOffset)
		}

		bufPos := v.curOffset - FileHeaderSize
		hdr = decodeRecordHeader(v.cur.Buf[bufPos:])
		padded := Pad4(hdr.Size)
		end := v.curOffset + RecordHeaderSize + padded
		if end > v.cur.Size() || end < v.curOffset {
			return RecordHeader{}, nil, false, fmt.Errorf(
				"%w: record size %d past EOF at seq %d offset %d",
				ErrCorrupted, hdr.Size, v.cur.Hdr.FileSeq, v.curOffset)
		}

		v.prevSeq, v.prevOffset = v.cur.Hdr.FileSeq, v.curOffset
		payload = v.cur.Buf[bufPos+RecordHeaderSize : bufPos+RecordHeaderSize+hdr.Size]
		v.curOffset = end
		return hdr, payload, true, nil
	}
}

// PrevPos returns the log position of the transaction most recently
// returned by Next, or the end-of-log position once Next reported done.
func (v *View) PrevPos() (seq, offset uint32) {
	return v.prevSeq, v.prevOffset
}
