// Package txlog implements the mailbox transaction log: the little-endian
// wire format of transaction records, append-only log files with a
// sequence-numbered header chain, and the View cursor the sync driver
// iterates.
//
// All multi-byte integers are little-endian. Each transaction is an outer
// header {type, size} followed by size bytes of payload, padded so the next
// transaction starts on a 4-byte boundary.
package txlog

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// RecordType is the outer header's type word: one type bit plus marker
// flags.
type RecordType uint32

const (
	TypeAppend          RecordType = 0x00000001
	TypeExpunge         RecordType = 0x00000002
	TypeFlagUpdate      RecordType = 0x00000004
	TypeHeaderUpdate    RecordType = 0x00000008
	TypeExtIntro        RecordType = 0x00000010
	TypeExtReset        RecordType = 0x00000020
	TypeExtHdrUpdate    RecordType = 0x00000040
	TypeExtRecUpdate    RecordType = 0x00000080
	TypeKeywordUpdate   RecordType = 0x00000100
	TypeKeywordReset    RecordType = 0x00000200
	TypeExtAtomicInc    RecordType = 0x00000400
	TypeExpungeGUID     RecordType = 0x00000800
	TypeModseqUpdate    RecordType = 0x00001000
	TypeExtHdrUpdate32  RecordType = 0x00002000
	TypeIndexDeleted    RecordType = 0x00004000
	TypeIndexUndeleted  RecordType = 0x00008000
	TypeBoundary        RecordType = 0x00010000
	TypeAttributeUpdate RecordType = 0x00020000

	// TypeMask selects the record type bits from the type word.
	TypeMask RecordType = 0x000fffff

	// FlagExternal marks a transaction that has already been applied to the
	// authoritative message store; the applier commits it. Without it the
	// transaction is only a recorded request.
	FlagExternal RecordType = 0x10000000

	// FlagExpungeProtect must accompany every expunge-type record. A type
	// word that decodes to an expunge without it is treated as corruption,
	// so a flipped bit elsewhere in the word cannot silently destroy mail.
	FlagExpungeProtect RecordType = 0x20000000
)

// RecordHeaderSize is the size of the outer transaction header on the wire.
const RecordHeaderSize = 8

// RecordHeader is the outer transaction header. Size counts payload bytes
// only.
type RecordHeader struct {
	Type RecordType
	Size uint32
}

// IsExternal reports the external marker.
func (h RecordHeader) IsExternal() bool { return h.Type&FlagExternal != 0 }

// Masked returns the type bits without markers.
func (h RecordHeader) Masked() RecordType { return h.Type & TypeMask }

func (h RecordHeader) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[4:], h.Size)
}

func decodeRecordHeader(buf []byte) RecordHeader {
	return RecordHeader{
		Type: RecordType(binary.LittleEndian.Uint32(buf[0:])),
		Size: binary.LittleEndian.Uint32(buf[4:]),
	}
}

// Pad4 rounds n up to a 4-byte boundary.
func Pad4(n uint32) uint32 { return (n + 3) &^ 3 }

// ============================================================================
// Payload layouts
// ============================================================================

// AppendRecordSize is the wire size of one appended message record: the
// base record only; extension data arrives via EXT_REC_UPDATE.
const AppendRecordSize = 8

// AppendRecord is one message in an APPEND payload.
type AppendRecord struct {
	UID   uint32
	Flags uint8
}

// ExpungeRecordSize is the wire size of one expunge UID range.
const ExpungeRecordSize = 8

// ExpungeRecord is an inclusive UID range in an EXPUNGE payload.
type ExpungeRecord struct {
	UID1, UID2 uint32
}

// ExpungeGUIDRecordSize is the wire size of one GUID-checked expunge.
const ExpungeGUIDRecordSize = 20

// ExpungeGUIDRecord expunges a single UID, carrying the message GUID so a
// reader can cross-check it is destroying the right message.
type ExpungeGUIDRecord struct {
	UID  uint32
	GUID uuid.UUID
}

// FlagUpdateRecordSize is the wire size of one flag update range.
const FlagUpdateRecordSize = 12

// FlagUpdateRecord updates flags over an inclusive UID range.
type FlagUpdateRecord struct {
	UID1, UID2 uint32
	Add        uint8
	Remove     uint8
}

// HeaderUpdateFixedSize is the fixed prefix of a HEADER_UPDATE entry; Size
// data bytes follow, then padding to 4.
const HeaderUpdateFixedSize = 4

// HeaderUpdateRecord patches the serialized base header.
type HeaderUpdateRecord struct {
	Offset uint16
	Size   uint16
	Data   []byte
}

// ExtIntroFixedSize is the fixed prefix of an EXT_INTRO descriptor;
// NameSize name bytes follow, then padding to 4.
const ExtIntroFixedSize = 24

// ExtIntroUseName is the ExtID sentinel meaning "resolve by name".
const ExtIntroUseName = ^uint32(0)

// ExtIntroRecord introduces (or re-selects) an extension for the records
// that follow it in the log.
type ExtIntroRecord struct {
	ExtID       uint32 // ExtIntroUseName, or index into the map's extension table
	ResetID     uint32
	HdrSize     uint32
	RecordSize  uint32
	RecordAlign uint32
	Name        string
}

// ExtResetRecordSize is the wire size of an EXT_RESET payload.
const ExtResetRecordSize = 8

// ExtResetRecord clears the currently introduced extension's data.
type ExtResetRecord struct {
	NewResetID   uint32
	PreserveData bool
}

// ExtHdrUpdateFixedSize is the fixed prefix of an EXT_HDR_UPDATE entry.
const ExtHdrUpdateFixedSize = 4

// ExtHdrUpdate32FixedSize is the fixed prefix of the 32-bit variant.
const ExtHdrUpdate32FixedSize = 8

// ExtHdrUpdateRecord patches the current extension's header region. The
// 16-bit form covers regions up to 64KiB; the 32-bit form anything larger.
type ExtHdrUpdateRecord struct {
	Offset uint32
	Size   uint32
	Data   []byte
}

// ExtRecUpdateFixedSize is the UID prefix of an EXT_REC_UPDATE entry; the
// current extension's record_size data bytes follow, the whole entry
// padded to 4.
const ExtRecUpdateFixedSize = 4

// ExtAtomicIncRecordSize is the wire size of one atomic increment.
const ExtAtomicIncRecordSize = 8

// ExtAtomicIncRecord atomically adds Diff to the numeric extension field of
// the record with UID.
type ExtAtomicIncRecord struct {
	UID  uint32
	Diff int32
}

// Keyword modify types.
const (
	KeywordAdd    = uint8(1)
	KeywordRemove = uint8(2)
)

// KeywordUpdateFixedSize is the fixed prefix of a KEYWORD_UPDATE payload;
// the keyword name follows (padded to 4), then UID ranges to the payload
// end.
const KeywordUpdateFixedSize = 4

// KeywordUpdateRecord adds or removes one keyword over UID ranges.
type KeywordUpdateRecord struct {
	ModifyType uint8
	Name       string
	UIDRanges  []ExpungeRecord
}

// ModseqUpdateRecordSize is the wire size of one modseq update.
const ModseqUpdateRecordSize = 12

// ModseqUpdateRecord raises a message's modseq to at least the given value.
type ModseqUpdateRecord struct {
	UID          uint32
	ModseqLow32  uint32
	ModseqHigh32 uint32
}

// Modseq composes the 64-bit modseq value.
func (r ModseqUpdateRecord) Modseq() uint64 {
	return uint64(r.ModseqHigh32)<<32 | uint64(r.ModseqLow32)
}
