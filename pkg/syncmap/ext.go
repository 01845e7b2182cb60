package syncmap

import (
	"encoding/binary"

	"github.com/maildrop/indexsync/internal/logger"
	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/txlog"
)

// ============================================================================
// Extension introduction
// ============================================================================

func (c *Context) syncExtIntroAll(hdr txlog.RecordHeader, payload []byte) {
	// Remember where this intro starts and ends so a mid-sync map
	// replacement can back the successor's resume offset up to it.
	prevSeq, prevOffset := c.logView.PrevPos()
	c.extIntroSeq = prevSeq
	c.extIntroOffset = prevOffset
	c.extIntroEndOffset = prevOffset + txlog.RecordHeaderSize + hdr.Size

	for i := uint32(0); i < uint32(len(payload)); {
		if i+txlog.ExtIntroFixedSize > uint32(len(payload)) {
			// should be just extra padding
			break
		}
		le := binary.LittleEndian
		rec := txlog.ExtIntroRecord{
			ExtID:       le.Uint32(payload[i:]),
			ResetID:     le.Uint32(payload[i+4:]),
			HdrSize:     le.Uint32(payload[i+8:]),
			RecordSize:  le.Uint32(payload[i+12:]),
			RecordAlign: le.Uint32(payload[i+16:]),
		}
		nameSize := le.Uint32(payload[i+20:])
		if i+txlog.ExtIntroFixedSize+nameSize > uint32(len(payload)) {
			c.setCorrupted("ext intro: name past record end")
			return
		}
		rec.Name = string(payload[i+txlog.ExtIntroFixedSize : i+txlog.ExtIntroFixedSize+nameSize])

		if !c.syncExtIntro(rec) {
			return
		}
		i = txlog.Pad4(i + txlog.ExtIntroFixedSize + nameSize)
	}
}

func (c *Context) syncExtIntro(rec txlog.ExtIntroRecord) bool {
	name := rec.Name
	idx := mailindex.ExtNone

	if rec.ExtID != txlog.ExtIntroUseName {
		if rec.ExtID >= uint32(len(c.cur.Extensions)) {
			c.setCorrupted("ext intro: unknown extension id %d", rec.ExtID)
			return false
		}
		idx = rec.ExtID
		name = c.cur.Extensions[idx].Name
	} else if found, ok := c.cur.FindExtension(name); ok {
		idx = found
	}

	if idx == mailindex.ExtNone {
		// A brand-new extension: widening the records needs a map nothing
		// else shares.
		m := c.getAtomicMap()
		idx = m.RegisterExtension(name, rec.ResetID, rec.HdrSize, rec.RecordSize, rec.RecordAlign)
		c.selectExt(idx, rec.RecordSize, false)
		if name == ModseqExtName {
			c.modseq.enable()
		}
		c.notifyExtIntro(name, idx)
		return true
	}

	ext := &c.cur.Extensions[idx]
	if rec.RecordSize != ext.RecordSize || rec.HdrSize != ext.HdrSize {
		// The writer sees a different layout than this map. Honor the
		// introduction but ignore the ext records that follow; a full
		// resize is a rebuild concern, not a replay concern.
		c.selectExt(idx, rec.RecordSize, true)
		c.unknownExtensions = append(c.unknownExtensions, name)
		logger.WarnCtx(c.ctx, "extension layout mismatch, ignoring its records",
			logger.String(logger.KeyMailbox, c.idx.Name),
			logger.String(logger.KeyExtensionID, name))
		return true
	}

	if rec.ResetID != ext.ResetID {
		// A different reset generation: the map's data for this extension
		// is stale. Clearing it mutates every record, so fork first.
		m := c.getAtomicMap()
		m.ResetExtension(idx, rec.ResetID, false)
		c.notifyExtReset(name, idx)
	}

	c.selectExt(idx, ext.RecordSize, false)
	if name == ModseqExtName {
		c.modseq.enable()
	}
	c.notifyExtIntro(name, idx)
	return true
}

func (c *Context) selectExt(idx, recordSize uint32, ignore bool) {
	c.curExtIdx = idx
	c.curExtRecordSize = recordSize
	c.curExtIgnore = ignore
}

// requireExtIntro validates the intro-prefix prerequisite shared by every
// per-extension record type.
func (c *Context) requireExtIntro(what string) bool {
	if c.curExtIdx == mailindex.ExtNone {
		c.setCorrupted("%s without intro prefix", what)
		return false
	}
	return true
}

// ============================================================================
// Extension reset
// ============================================================================

func (c *Context) syncExtReset(payload []byte) {
	if len(payload) < 4 {
		c.setCorrupted("ext reset: invalid record size")
		return
	}
	if !c.requireExtIntro("Extension reset") {
		return
	}
	if c.curExtIgnore {
		return
	}

	newResetID := binary.LittleEndian.Uint32(payload)
	preserve := len(payload) >= txlog.ExtResetRecordSize &&
		binary.LittleEndian.Uint32(payload[4:]) != 0

	m := c.getAtomicMap()
	m.ResetExtension(c.curExtIdx, newResetID, preserve)
	c.notifyExtReset(m.Extensions[c.curExtIdx].Name, c.curExtIdx)
}

// ============================================================================
// Extension header update
// ============================================================================

func (c *Context) syncExtHdrUpdateAll(payload []byte, wide bool) {
	if !c.requireExtIntro("Extension header updated") {
		return
	}

	fixed := uint32(txlog.ExtHdrUpdateFixedSize)
	if wide {
		fixed = txlog.ExtHdrUpdate32FixedSize
	}

	for i := uint32(0); i < uint32(len(payload)); {
		if i+fixed > uint32(len(payload)) {
			c.setCorrupted("ext hdr update: invalid record size")
			return
		}
		var offset, size uint32
		if wide {
			offset = binary.LittleEndian.Uint32(payload[i:])
			size = binary.LittleEndian.Uint32(payload[i+4:])
		} else {
			offset = uint32(binary.LittleEndian.Uint16(payload[i:]))
			size = uint32(binary.LittleEndian.Uint16(payload[i+2:]))
		}
		if i+fixed+size > uint32(len(payload)) {
			c.setCorrupted("ext hdr update: invalid record size")
			return
		}
		if !c.syncExtHdrUpdate(offset, payload[i+fixed:i+fixed+size]) {
			return
		}
		i = txlog.Pad4(i + fixed + size)
	}
}

func (c *Context) syncExtHdrUpdate(offset uint32, data []byte) bool {
	if c.curExtIgnore {
		return true
	}
	ext := &c.cur.Extensions[c.curExtIdx]
	if offset+uint32(len(data)) > ext.HdrSize {
		c.setCorrupted("ext hdr update: %d + %d > %d", offset, len(data), ext.HdrSize)
		return false
	}
	copy(c.cur.ExtHdr(c.curExtIdx)[offset:], data)
	c.notifyExtHdrUpdate(ext.Name, c.curExtIdx)
	return true
}

// ============================================================================
// Extension record update
// ============================================================================

func (c *Context) syncExtRecUpdateAll(payload []byte) {
	if !c.requireExtIntro("Extension record updated") {
		return
	}
	if c.curExtIgnore {
		return
	}

	// Each entry is padded to 32 bits in the transaction log.
	entrySize := txlog.Pad4(txlog.ExtRecUpdateFixedSize + c.curExtRecordSize)

	for i := uint32(0); i < uint32(len(payload)); i += entrySize {
		if i+entrySize > uint32(len(payload)) {
			c.setCorrupted("ext rec update: invalid record size")
			return
		}
		uid := binary.LittleEndian.Uint32(payload[i:])
		seq, ok := c.lookupSeq(uid)
		if !ok {
			continue
		}
		data := payload[i+txlog.ExtRecUpdateFixedSize : i+txlog.ExtRecUpdateFixedSize+c.curExtRecordSize]
		copy(c.cur.ExtRecord(c.curExtIdx, seq), data)
		c.notifyExtRecUpdate(c.cur.Extensions[c.curExtIdx].Name, c.curExtIdx, seq)
	}
}

// ============================================================================
// Extension atomic increment
// ============================================================================

func (c *Context) syncExtAtomicIncAll(payload []byte) {
	if !c.requireExtIntro("Extension record updated") {
		return
	}
	if c.curExtIgnore {
		return
	}
	if len(payload)%txlog.ExtAtomicIncRecordSize != 0 {
		c.setCorrupted("ext atomic-inc: invalid record size %d", len(payload))
		return
	}

	for off := 0; off < len(payload); off += txlog.ExtAtomicIncRecordSize {
		uid := binary.LittleEndian.Uint32(payload[off:])
		diff := int32(binary.LittleEndian.Uint32(payload[off+4:]))
		if !c.syncExtAtomicInc(uid, diff) {
			return
		}
	}
}

func (c *Context) syncExtAtomicInc(uid uint32, diff int32) bool {
	seq, ok := c.lookupSeq(uid)
	if !ok {
		return true
	}

	data := c.cur.ExtRecord(c.curExtIdx, seq)
	le := binary.LittleEndian

	var value uint64
	switch len(data) {
	case 1:
		value = uint64(data[0])
	case 2:
		value = uint64(le.Uint16(data))
	case 4:
		value = uint64(le.Uint32(data))
	case 8:
		value = le.Uint64(data)
	default:
		c.setCorrupted("ext atomic-inc: invalid extension record size %d", len(data))
		return false
	}

	next := value + uint64(int64(diff))
	if diff > 0 && next < value {
		c.setCorrupted("ext atomic-inc: increment overflow for uid %d", uid)
		return false
	}
	if diff < 0 && next > value {
		c.setCorrupted("ext atomic-inc: decrement underflow for uid %d", uid)
		return false
	}

	switch len(data) {
	case 1:
		if next > 0xff {
			c.setCorrupted("ext atomic-inc: increment overflow for uid %d", uid)
			return false
		}
		data[0] = byte(next)
	case 2:
		if next > 0xffff {
			c.setCorrupted("ext atomic-inc: increment overflow for uid %d", uid)
			return false
		}
		le.PutUint16(data, uint16(next))
	case 4:
		if next > 0xffffffff {
			c.setCorrupted("ext atomic-inc: increment overflow for uid %d", uid)
			return false
		}
		le.PutUint32(data, uint32(next))
	case 8:
		le.PutUint64(data, next)
	}
	c.notifyExtRecUpdate(c.cur.Extensions[c.curExtIdx].Name, c.curExtIdx, seq)
	return true
}
