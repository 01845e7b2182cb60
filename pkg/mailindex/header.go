package mailindex

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// BaseHeaderSize is the size of the serialized base header. Extension
// headers, when any extension is registered, are appended after it inside
// HdrCopyBuf; Header.HeaderSize covers base plus extensions.
const BaseHeaderSize = 64

// Serialized base header layout. HEADER_UPDATE transactions patch
// HdrCopyBuf at these byte offsets, so the layout is normative: changing an
// offset changes the wire format.
const (
	hdrOffIndexID                 = 0
	hdrOffBaseHeaderSize          = 4
	hdrOffHeaderSize              = 8
	hdrOffRecordSize              = 12
	hdrOffMessagesCount           = 16
	hdrOffNextUID                 = 20
	hdrOffSeenMessagesCount       = 24
	hdrOffDeletedMessagesCount    = 28
	hdrOffFirstUnseenUIDLowwater  = 32
	hdrOffFirstDeletedUIDLowwater = 36
	hdrOffFlags                   = 40
	hdrOffLogFileSeq              = 44
	hdrOffLogFileHeadOffset       = 48
	hdrOffLogFileTailOffset       = 52
	hdrOffUIDValidity             = 56
	hdrOffFirstRecentUID          = 60
)

// Header is the fixed-size metadata block that precedes the record array.
// Every field here is the target of some counter/lowwater maintenance rule
// driven off the record stream; see counts.go.
type Header struct {
	IndexID uint32 // stamp identifying the index's creation; changes on rebuild

	BaseHeaderSize uint32
	HeaderSize     uint32 // base header + registered extension headers
	RecordSize     uint32

	MessagesCount uint32
	NextUID       uint32

	SeenMessagesCount    uint32
	DeletedMessagesCount uint32

	FirstUnseenUIDLowwater  uint32
	FirstDeletedUIDLowwater uint32

	Flags HeaderFlags

	LogFileSeq        uint32
	LogFileHeadOffset uint32
	LogFileTailOffset uint32

	UIDValidity    uint32
	FirstRecentUID uint32
}

// NewHeader returns a header for a brand-new, empty index with a fresh
// indexid stamp. UIDs start at 1 and both lowwaters start at next_uid so
// any later flag change can only tighten them downward.
func NewHeader(recordSize uint32) Header {
	if recordSize < BaseRecordSize {
		recordSize = BaseRecordSize
	}
	return Header{
		IndexID:                 uuid.New().ID(),
		BaseHeaderSize:          BaseHeaderSize,
		HeaderSize:              BaseHeaderSize,
		RecordSize:              recordSize,
		NextUID:                 1,
		FirstUnseenUIDLowwater:  1,
		FirstDeletedUIDLowwater: 1,
		UIDValidity:             uuid.New().ID(),
	}
}

// Clone returns an independent copy. Header is small and fixed-size so a
// value copy is always sufficient; no field here ever points at shared
// backing storage.
func (h Header) Clone() Header {
	return h
}

// Encode serializes h into buf, which must be at least BaseHeaderSize long.
// Bytes past the base header (extension header space) are left untouched.
func (h *Header) Encode(buf []byte) {
	le := binary.LittleEndian
	le.PutUint32(buf[hdrOffIndexID:], h.IndexID)
	le.PutUint32(buf[hdrOffBaseHeaderSize:], h.BaseHeaderSize)
	le.PutUint32(buf[hdrOffHeaderSize:], h.HeaderSize)
	le.PutUint32(buf[hdrOffRecordSize:], h.RecordSize)
	le.PutUint32(buf[hdrOffMessagesCount:], h.MessagesCount)
	le.PutUint32(buf[hdrOffNextUID:], h.NextUID)
	le.PutUint32(buf[hdrOffSeenMessagesCount:], h.SeenMessagesCount)
	le.PutUint32(buf[hdrOffDeletedMessagesCount:], h.DeletedMessagesCount)
	le.PutUint32(buf[hdrOffFirstUnseenUIDLowwater:], h.FirstUnseenUIDLowwater)
	le.PutUint32(buf[hdrOffFirstDeletedUIDLowwater:], h.FirstDeletedUIDLowwater)
	le.PutUint32(buf[hdrOffFlags:], uint32(h.Flags))
	le.PutUint32(buf[hdrOffLogFileSeq:], h.LogFileSeq)
	le.PutUint32(buf[hdrOffLogFileHeadOffset:], h.LogFileHeadOffset)
	le.PutUint32(buf[hdrOffLogFileTailOffset:], h.LogFileTailOffset)
	le.PutUint32(buf[hdrOffUIDValidity:], h.UIDValidity)
	le.PutUint32(buf[hdrOffFirstRecentUID:], h.FirstRecentUID)
}

// Decode fills h from the serialized base header at the start of buf.
func (h *Header) Decode(buf []byte) {
	le := binary.LittleEndian
	h.IndexID = le.Uint32(buf[hdrOffIndexID:])
	h.BaseHeaderSize = le.Uint32(buf[hdrOffBaseHeaderSize:])
	h.HeaderSize = le.Uint32(buf[hdrOffHeaderSize:])
	h.RecordSize = le.Uint32(buf[hdrOffRecordSize:])
	h.MessagesCount = le.Uint32(buf[hdrOffMessagesCount:])
	h.NextUID = le.Uint32(buf[hdrOffNextUID:])
	h.SeenMessagesCount = le.Uint32(buf[hdrOffSeenMessagesCount:])
	h.DeletedMessagesCount = le.Uint32(buf[hdrOffDeletedMessagesCount:])
	h.FirstUnseenUIDLowwater = le.Uint32(buf[hdrOffFirstUnseenUIDLowwater:])
	h.FirstDeletedUIDLowwater = le.Uint32(buf[hdrOffFirstDeletedUIDLowwater:])
	h.Flags = HeaderFlags(le.Uint32(buf[hdrOffFlags:]))
	h.LogFileSeq = le.Uint32(buf[hdrOffLogFileSeq:])
	h.LogFileHeadOffset = le.Uint32(buf[hdrOffLogFileHeadOffset:])
	h.LogFileTailOffset = le.Uint32(buf[hdrOffLogFileTailOffset:])
	h.UIDValidity = le.Uint32(buf[hdrOffUIDValidity:])
	h.FirstRecentUID = le.Uint32(buf[hdrOffFirstRecentUID:])
}
