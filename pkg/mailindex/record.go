package mailindex

import "encoding/binary"

// BaseRecordSize is the fixed portion of every record: a UID, the inline
// flags byte, and three bytes of alignment padding. Extension data, if any
// extension is registered, is appended immediately after this base.
const BaseRecordSize = 8

// Record is a decoded view of one message record. It is a convenience type
// for callers; RecordMap itself stores records packed into a flat byte
// buffer and never materializes a Record slice internally.
type Record struct {
	UID   uint32
	Flags MessageFlags
	Ext   []byte
}

func uidAt(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

func putUIDAt(buf []byte, off int, uid uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], uid)
}

func flagsAt(buf []byte, off int) MessageFlags {
	return MessageFlags(buf[off+4])
}

func putFlagsAt(buf []byte, off int, flags MessageFlags) {
	buf[off+4] = byte(flags)
}
