package txlog

import "encoding/binary"

// Payload encoders. Each returns the payload bytes for one transaction of
// the corresponding type, already padded to a 4-byte boundary where the
// format requires it. The caller appends the result with Log.Append or
// File.Append, which prefixes the outer header.

// EncodeAppend encodes an APPEND payload.
func EncodeAppend(recs []AppendRecord) []byte {
	buf := make([]byte, len(recs)*AppendRecordSize)
	for i, r := range recs {
		off := i * AppendRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID)
		buf[off+4] = r.Flags
	}
	return buf
}

// EncodeExpunge encodes an EXPUNGE payload of UID ranges.
func EncodeExpunge(ranges []ExpungeRecord) []byte {
	buf := make([]byte, len(ranges)*ExpungeRecordSize)
	for i, r := range ranges {
		off := i * ExpungeRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID1)
		binary.LittleEndian.PutUint32(buf[off+4:], r.UID2)
	}
	return buf
}

// EncodeExpungeGUID encodes an EXPUNGE_GUID payload.
func EncodeExpungeGUID(recs []ExpungeGUIDRecord) []byte {
	buf := make([]byte, len(recs)*ExpungeGUIDRecordSize)
	for i, r := range recs {
		off := i * ExpungeGUIDRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID)
		copy(buf[off+4:off+20], r.GUID[:])
	}
	return buf
}

// EncodeFlagUpdate encodes a FLAG_UPDATE payload.
func EncodeFlagUpdate(recs []FlagUpdateRecord) []byte {
	buf := make([]byte, len(recs)*FlagUpdateRecordSize)
	for i, r := range recs {
		off := i * FlagUpdateRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID1)
		binary.LittleEndian.PutUint32(buf[off+4:], r.UID2)
		buf[off+8] = r.Add
		buf[off+9] = r.Remove
	}
	return buf
}

// EncodeHeaderUpdate encodes a HEADER_UPDATE payload of one or more
// entries, each 4-byte padded.
func EncodeHeaderUpdate(recs []HeaderUpdateRecord) []byte {
	var size uint32
	for _, r := range recs {
		size += Pad4(HeaderUpdateFixedSize + uint32(len(r.Data)))
	}
	buf := make([]byte, size)
	pos := uint32(0)
	for _, r := range recs {
		binary.LittleEndian.PutUint16(buf[pos:], r.Offset)
		binary.LittleEndian.PutUint16(buf[pos+2:], uint16(len(r.Data)))
		copy(buf[pos+4:], r.Data)
		pos += Pad4(HeaderUpdateFixedSize + uint32(len(r.Data)))
	}
	return buf
}

// EncodeExtIntro encodes an EXT_INTRO payload of descriptors.
func EncodeExtIntro(recs []ExtIntroRecord) []byte {
	var size uint32
	for _, r := range recs {
		size += Pad4(ExtIntroFixedSize + uint32(len(r.Name)))
	}
	buf := make([]byte, size)
	pos := uint32(0)
	for _, r := range recs {
		le := binary.LittleEndian
		le.PutUint32(buf[pos:], r.ExtID)
		le.PutUint32(buf[pos+4:], r.ResetID)
		le.PutUint32(buf[pos+8:], r.HdrSize)
		le.PutUint32(buf[pos+12:], r.RecordSize)
		le.PutUint32(buf[pos+16:], r.RecordAlign)
		le.PutUint32(buf[pos+20:], uint32(len(r.Name)))
		copy(buf[pos+24:], r.Name)
		pos += Pad4(ExtIntroFixedSize + uint32(len(r.Name)))
	}
	return buf
}

// EncodeExtReset encodes an EXT_RESET payload.
func EncodeExtReset(r ExtResetRecord) []byte {
	buf := make([]byte, ExtResetRecordSize)
	binary.LittleEndian.PutUint32(buf[0:], r.NewResetID)
	if r.PreserveData {
		binary.LittleEndian.PutUint32(buf[4:], 1)
	}
	return buf
}

// EncodeExtHdrUpdate encodes an EXT_HDR_UPDATE payload (16-bit sizes).
func EncodeExtHdrUpdate(recs []ExtHdrUpdateRecord) []byte {
	var size uint32
	for _, r := range recs {
		size += Pad4(ExtHdrUpdateFixedSize + uint32(len(r.Data)))
	}
	buf := make([]byte, size)
	pos := uint32(0)
	for _, r := range recs {
		binary.LittleEndian.PutUint16(buf[pos:], uint16(r.Offset))
		binary.LittleEndian.PutUint16(buf[pos+2:], uint16(len(r.Data)))
		copy(buf[pos+4:], r.Data)
		pos += Pad4(ExtHdrUpdateFixedSize + uint32(len(r.Data)))
	}
	return buf
}

// EncodeExtHdrUpdate32 encodes the 32-bit EXT_HDR_UPDATE32 variant.
func EncodeExtHdrUpdate32(recs []ExtHdrUpdateRecord) []byte {
	var size uint32
	for _, r := range recs {
		size += Pad4(ExtHdrUpdate32FixedSize + uint32(len(r.Data)))
	}
	buf := make([]byte, size)
	pos := uint32(0)
	for _, r := range recs {
		binary.LittleEndian.PutUint32(buf[pos:], r.Offset)
		binary.LittleEndian.PutUint32(buf[pos+4:], uint32(len(r.Data)))
		copy(buf[pos+8:], r.Data)
		pos += Pad4(ExtHdrUpdate32FixedSize + uint32(len(r.Data)))
	}
	return buf
}

// EncodeExtRecUpdate encodes an EXT_REC_UPDATE payload. Every data slice
// must be extRecordSize long, matching the introduced extension.
func EncodeExtRecUpdate(extRecordSize uint32, uids []uint32, data [][]byte) []byte {
	entry := Pad4(ExtRecUpdateFixedSize + extRecordSize)
	buf := make([]byte, entry*uint32(len(uids)))
	for i, uid := range uids {
		pos := entry * uint32(i)
		binary.LittleEndian.PutUint32(buf[pos:], uid)
		copy(buf[pos+4:pos+4+extRecordSize], data[i])
	}
	return buf
}

// EncodeExtAtomicInc encodes an EXT_ATOMIC_INC payload.
func EncodeExtAtomicInc(recs []ExtAtomicIncRecord) []byte {
	buf := make([]byte, len(recs)*ExtAtomicIncRecordSize)
	for i, r := range recs {
		off := i * ExtAtomicIncRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(r.Diff))
	}
	return buf
}

// EncodeKeywordUpdate encodes a KEYWORD_UPDATE payload.
func EncodeKeywordUpdate(r KeywordUpdateRecord) []byte {
	nameEnd := Pad4(KeywordUpdateFixedSize + uint32(len(r.Name)))
	buf := make([]byte, nameEnd+uint32(len(r.UIDRanges))*ExpungeRecordSize)
	buf[0] = r.ModifyType
	binary.LittleEndian.PutUint16(buf[2:], uint16(len(r.Name)))
	copy(buf[4:], r.Name)
	pos := nameEnd
	for _, ur := range r.UIDRanges {
		binary.LittleEndian.PutUint32(buf[pos:], ur.UID1)
		binary.LittleEndian.PutUint32(buf[pos+4:], ur.UID2)
		pos += ExpungeRecordSize
	}
	return buf
}

// EncodeKeywordReset encodes a KEYWORD_RESET payload of UID ranges.
func EncodeKeywordReset(ranges []ExpungeRecord) []byte {
	return EncodeExpunge(ranges)
}

// EncodeModseqUpdate encodes a MODSEQ_UPDATE payload.
func EncodeModseqUpdate(recs []ModseqUpdateRecord) []byte {
	buf := make([]byte, len(recs)*ModseqUpdateRecordSize)
	for i, r := range recs {
		off := i * ModseqUpdateRecordSize
		binary.LittleEndian.PutUint32(buf[off:], r.UID)
		binary.LittleEndian.PutUint32(buf[off+4:], r.ModseqLow32)
		binary.LittleEndian.PutUint32(buf[off+8:], r.ModseqHigh32)
	}
	return buf
}

// EncodeBoundary encodes a BOUNDARY payload.
func EncodeBoundary(size uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, size)
	return buf
}
