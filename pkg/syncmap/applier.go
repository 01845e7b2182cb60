package syncmap

import (
	"encoding/binary"

	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/txlog"
)

// applyRecord dispatches one transaction record into the working map.
// Corruption in the record marks the context and abandons the record;
// the caller continues with the next one either way.
func (c *Context) applyRecord(hdr txlog.RecordHeader, payload []byte) {
	observeRecord(c.metrics, recTypeName(hdr.Masked()))

	switch hdr.Masked() {
	case txlog.TypeAppend:
		c.syncAppendAll(payload)

	case txlog.TypeExpunge:
		c.syncExpunge(hdr, payload)

	case txlog.TypeExpungeGUID:
		c.syncExpungeGUID(hdr, payload)

	case txlog.TypeFlagUpdate:
		c.syncFlagUpdateAll(payload)

	case txlog.TypeHeaderUpdate:
		c.syncHeaderUpdateAll(payload)

	case txlog.TypeExtIntro:
		c.syncExtIntroAll(hdr, payload)

	case txlog.TypeExtReset:
		c.syncExtReset(payload)

	case txlog.TypeExtHdrUpdate:
		c.syncExtHdrUpdateAll(payload, false)

	case txlog.TypeExtHdrUpdate32:
		c.syncExtHdrUpdateAll(payload, true)

	case txlog.TypeExtRecUpdate:
		c.syncExtRecUpdateAll(payload)

	case txlog.TypeExtAtomicInc:
		c.syncExtAtomicIncAll(payload)

	case txlog.TypeKeywordUpdate:
		c.syncKeywordUpdate(payload)

	case txlog.TypeKeywordReset:
		c.syncKeywordReset(payload)

	case txlog.TypeModseqUpdate:
		c.syncModseqUpdateAll(payload)

	case txlog.TypeIndexDeleted:
		if !hdr.IsExternal() {
			// only the request is recorded
			c.idx.DeleteRequested = true
		}

	case txlog.TypeIndexUndeleted:
		c.idx.DeleteRequested = false

	case txlog.TypeBoundary, txlog.TypeAttributeUpdate:
		// no-op

	default:
		c.setCorrupted("unknown transaction record type 0x%x", uint32(hdr.Masked()))
	}
}

// ============================================================================
// Append
// ============================================================================

func (c *Context) syncAppendAll(payload []byte) {
	if len(payload)%txlog.AppendRecordSize != 0 {
		c.setCorrupted("append: invalid record size %d", len(payload))
		return
	}
	for off := 0; off < len(payload); off += txlog.AppendRecordSize {
		uid := binary.LittleEndian.Uint32(payload[off:])
		flags := mailindex.MessageFlags(payload[off+4])
		if !c.syncAppend(uid, flags) {
			break
		}
	}
}

func (c *Context) syncAppend(uid uint32, flags mailindex.MessageFlags) bool {
	if uid < c.cur.Header.NextUID {
		c.setCorrupted("Append with UID %d, but next_uid = %d", uid, c.cur.Header.NextUID)
		return false
	}

	// Appending writes past the record area, so an mmap-backed or shared
	// map has to be forked into private memory first.
	m := c.moveToPrivateMemory()

	var newFlags mailindex.MessageFlags
	if uid <= m.Rec.LastAppendedUID {
		// The record was already added to the record map by an earlier
		// sync of a sibling map. Its flags may have changed since then;
		// adopt the current ones so the flag counters stay correct.
		seq := m.Header.MessagesCount + 1
		if m.Rec.UIDAt(seq) != uid {
			c.setCorrupted("Append UID %d does not match existing record at seq %d", uid, seq)
			return false
		}
		newFlags = m.Rec.FlagsAt(seq)
	} else {
		m.Rec.Append(uid, flags, nil)
		newFlags = flags
		c.modseq.append(m.Rec.RecordsCount)
	}

	m.Header.MessagesCount++
	m.Header.NextUID = uid + 1

	if newFlags&mailindex.FlagDirty != 0 && !c.noDirty {
		m.Header.Flags |= mailindex.HeaderFlagHaveDirty
	}

	c.updateLowwatersAll(uid, newFlags)
	c.updateCounts(uid, 0, newFlags)
	return true
}

// ============================================================================
// Expunge
// ============================================================================

func (c *Context) syncExpunge(hdr txlog.RecordHeader, payload []byte) {
	if !hdr.IsExternal() {
		// this is simply a request for expunge
		return
	}
	if hdr.Type&txlog.FlagExpungeProtect == 0 {
		c.setCorrupted("expunge record without protect marker")
		return
	}
	if len(payload)%txlog.ExpungeRecordSize != 0 {
		c.setCorrupted("expunge: invalid record size %d", len(payload))
		return
	}

	var ranges []uidRange
	for off := 0; off < len(payload); off += txlog.ExpungeRecordSize {
		ranges = append(ranges, uidRange{
			uid1: binary.LittleEndian.Uint32(payload[off:]),
			uid2: binary.LittleEndian.Uint32(payload[off+4:]),
		})
	}
	c.expungeRanges(c.collectSeqRanges(ranges))
}

func (c *Context) syncExpungeGUID(hdr txlog.RecordHeader, payload []byte) {
	if !hdr.IsExternal() {
		return
	}
	if hdr.Type&txlog.FlagExpungeProtect == 0 {
		c.setCorrupted("expunge-guid record without protect marker")
		return
	}
	if len(payload)%txlog.ExpungeGUIDRecordSize != 0 {
		c.setCorrupted("expunge-guid: invalid record size %d", len(payload))
		return
	}

	set := &seqRangeSet{}
	for off := 0; off < len(payload); off += txlog.ExpungeGUIDRecordSize {
		uid := binary.LittleEndian.Uint32(payload[off:])
		if uid == 0 {
			c.setCorrupted("expunge-guid with UID 0")
			return
		}
		if seq, ok := c.lookupSeq(uid); ok {
			set.add(seq, seq)
		}
	}
	c.expungeRanges(set)
}

// ============================================================================
// Flag update
// ============================================================================

func (c *Context) syncFlagUpdateAll(payload []byte) {
	if len(payload)%txlog.FlagUpdateRecordSize != 0 {
		c.setCorrupted("flag update: invalid record size %d", len(payload))
		return
	}
	for off := 0; off < len(payload); off += txlog.FlagUpdateRecordSize {
		c.syncFlagUpdate(
			binary.LittleEndian.Uint32(payload[off:]),
			binary.LittleEndian.Uint32(payload[off+4:]),
			mailindex.MessageFlags(payload[off+8]),
			mailindex.MessageFlags(payload[off+9]))
	}
}

func (c *Context) syncFlagUpdate(uid1, uid2 uint32, add, remove mailindex.MessageFlags) {
	r, ok := c.lookupSeqRange(uid1, uid2)
	if !ok {
		return
	}

	// Dirty-only updates are internal bookkeeping and don't advance
	// modseqs; anything touching real flags does.
	touched := add | remove
	if touched&^mailindex.FlagDirty != 0 {
		c.modseq.updateFlags(touched, r.Start, r.End)
	}

	if add&mailindex.FlagDirty != 0 && !c.noDirty {
		c.cur.Header.Flags |= mailindex.HeaderFlagHaveDirty
	}

	flagMask := ^remove
	counted := touched&(mailindex.FlagSeen|mailindex.FlagDeleted) != 0

	rec := c.cur.Rec
	for seq := r.Start; seq <= r.End; seq++ {
		oldFlags := rec.FlagsAt(seq)
		newFlags := (oldFlags & flagMask) | add
		rec.SetFlagsAt(seq, newFlags)

		if counted {
			uid := rec.UIDAt(seq)
			c.updateLowwatersAll(uid, newFlags)
			c.updateCountsAll(uid, oldFlags, newFlags)
		}
	}
}

// ============================================================================
// Header update
// ============================================================================

func (c *Context) syncHeaderUpdateAll(payload []byte) {
	for i := uint32(0); i < uint32(len(payload)); {
		if i+txlog.HeaderUpdateFixedSize > uint32(len(payload)) {
			c.setCorrupted("header update: truncated entry")
			return
		}
		offset := uint32(binary.LittleEndian.Uint16(payload[i:]))
		size := uint32(binary.LittleEndian.Uint16(payload[i+2:]))
		if i+txlog.HeaderUpdateFixedSize+size > uint32(len(payload)) {
			c.setCorrupted("header update: invalid record size")
			return
		}
		if !c.syncHeaderUpdate(offset, payload[i+4:i+4+size]) {
			return
		}
		i = txlog.Pad4(i + txlog.HeaderUpdateFixedSize + size)
	}
}

func (c *Context) syncHeaderUpdate(offset uint32, data []byte) bool {
	m := c.cur
	size := uint32(len(data))

	if offset >= m.Header.BaseHeaderSize || offset+size > m.Header.BaseHeaderSize {
		c.setCorrupted("Header update outside range: %d + %d > %d",
			offset, size, m.Header.BaseHeaderSize)
		return false
	}

	origNextUID := m.Header.NextUID
	origTailOffset := m.Header.LogFileTailOffset

	copy(m.HdrCopyBuf[offset:], data)

	// Mirror only the patched byte range into the live header: serialize
	// the live header, overlay the update, decode back. Counters updated
	// during this pass outside the patched range must survive.
	var scratch [mailindex.BaseHeaderSize]byte
	m.Header.Encode(scratch[:])
	copy(scratch[offset:], data)
	m.Header.Decode(scratch[:])

	if m.Header.NextUID < origNextUID {
		// A next_uid update tried to shrink its value; this happens in
		// replication races, so restore silently.
		m.Header.NextUID = origNextUID
	}

	// Tail offsets in header updates are internal log bookkeeping; the
	// header's copy is only advanced when the sync finishes.
	m.Header.LogFileTailOffset = origTailOffset
	return true
}

// ============================================================================
// Modseq update
// ============================================================================

func (c *Context) syncModseqUpdateAll(payload []byte) {
	if len(payload)%txlog.ModseqUpdateRecordSize != 0 {
		c.setCorrupted("modseq update: invalid record size %d", len(payload))
		return
	}
	for off := 0; off < len(payload); off += txlog.ModseqUpdateRecordSize {
		uid := binary.LittleEndian.Uint32(payload[off:])
		low := binary.LittleEndian.Uint32(payload[off+4:])
		high := binary.LittleEndian.Uint32(payload[off+8:])
		modseq := uint64(high)<<32 | uint64(low)

		ret := 1
		if uid != 0 {
			seq, ok := c.lookupSeq(uid)
			if !ok {
				continue
			}
			ret = c.modseq.set(seq, modseq)
		}
		if ret < 0 {
			c.setCorrupted("modseqs updated before they were enabled")
			return
		}
		if ret == 0 && c.ignoredWithinCommit() {
			c.idx.SyncCommitResult.IgnoredModseqChanges++
		}
	}
}

func recTypeName(t txlog.RecordType) string {
	switch t {
	case txlog.TypeAppend:
		return "append"
	case txlog.TypeExpunge:
		return "expunge"
	case txlog.TypeExpungeGUID:
		return "expunge_guid"
	case txlog.TypeFlagUpdate:
		return "flag_update"
	case txlog.TypeHeaderUpdate:
		return "header_update"
	case txlog.TypeExtIntro:
		return "ext_intro"
	case txlog.TypeExtReset:
		return "ext_reset"
	case txlog.TypeExtHdrUpdate, txlog.TypeExtHdrUpdate32:
		return "ext_hdr_update"
	case txlog.TypeExtRecUpdate:
		return "ext_rec_update"
	case txlog.TypeExtAtomicInc:
		return "ext_atomic_inc"
	case txlog.TypeKeywordUpdate:
		return "keyword_update"
	case txlog.TypeKeywordReset:
		return "keyword_reset"
	case txlog.TypeModseqUpdate:
		return "modseq_update"
	case txlog.TypeIndexDeleted:
		return "index_deleted"
	case txlog.TypeIndexUndeleted:
		return "index_undeleted"
	case txlog.TypeBoundary:
		return "boundary"
	case txlog.TypeAttributeUpdate:
		return "attribute_update"
	default:
		return "unknown"
	}
}
