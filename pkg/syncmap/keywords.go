package syncmap

import (
	"encoding/binary"

	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/txlog"
)

// The keyword sub-applier maintains a per-record keyword bitmap stored in
// its own extension; keyword names live on the map and give bit positions.

func (c *Context) syncKeywordUpdate(payload []byte) {
	if len(payload) < txlog.KeywordUpdateFixedSize {
		c.setCorrupted("keyword update: truncated record")
		return
	}
	modifyType := payload[0]
	nameSize := uint32(binary.LittleEndian.Uint16(payload[2:]))
	if nameSize == 0 {
		c.setCorrupted("keyword update: empty keyword name")
		return
	}
	nameEnd := txlog.Pad4(txlog.KeywordUpdateFixedSize + nameSize)
	if nameEnd > uint32(len(payload)) ||
		(uint32(len(payload))-nameEnd)%txlog.ExpungeRecordSize != 0 {
		c.setCorrupted("keyword update: invalid record size")
		return
	}
	if modifyType != txlog.KeywordAdd && modifyType != txlog.KeywordRemove {
		c.setCorrupted("keyword update: unknown modify type %d", modifyType)
		return
	}

	name := string(payload[txlog.KeywordUpdateFixedSize : txlog.KeywordUpdateFixedSize+nameSize])

	kwExt, ok := c.ensureKeywordsExt()
	if !ok {
		return
	}
	kwIdx, ok := c.cur.AddKeyword(name)
	if !ok {
		c.setCorrupted("keyword update: too many keywords (max %d)", mailindex.MaxKeywords)
		return
	}

	bit := byte(1) << (kwIdx % 8)
	byteIdx := kwIdx / 8

	for pos := nameEnd; pos < uint32(len(payload)); pos += txlog.ExpungeRecordSize {
		uid1 := binary.LittleEndian.Uint32(payload[pos:])
		uid2 := binary.LittleEndian.Uint32(payload[pos+4:])
		r, found := c.lookupSeqRange(uid1, uid2)
		if !found {
			continue
		}
		for seq := r.Start; seq <= r.End; seq++ {
			data := c.cur.ExtRecord(kwExt, seq)
			if modifyType == txlog.KeywordAdd {
				data[byteIdx] |= bit
			} else {
				data[byteIdx] &^= bit
			}
		}
		c.modseq.updateFlags(mailindex.FlagsMask, r.Start, r.End)
	}
}

func (c *Context) syncKeywordReset(payload []byte) {
	if len(payload)%txlog.ExpungeRecordSize != 0 {
		c.setCorrupted("keyword reset: invalid record size %d", len(payload))
		return
	}
	kwExt, ok := c.cur.FindExtension(mailindex.KeywordsExtName)
	if !ok {
		// no keywords recorded yet, nothing to clear
		return
	}

	for off := 0; off < len(payload); off += txlog.ExpungeRecordSize {
		uid1 := binary.LittleEndian.Uint32(payload[off:])
		uid2 := binary.LittleEndian.Uint32(payload[off+4:])
		r, found := c.lookupSeqRange(uid1, uid2)
		if !found {
			continue
		}
		for seq := r.Start; seq <= r.End; seq++ {
			clear(c.cur.ExtRecord(kwExt, seq))
		}
		c.modseq.updateFlags(mailindex.FlagsMask, r.Start, r.End)
	}
}

// ensureKeywordsExt registers the keyword bitmap extension on first use.
func (c *Context) ensureKeywordsExt() (uint32, bool) {
	if idx, ok := c.cur.FindExtension(mailindex.KeywordsExtName); ok {
		return idx, true
	}
	m := c.getAtomicMap()
	idx := m.RegisterExtension(mailindex.KeywordsExtName, 0, 0, mailindex.KeywordsExtSize, 4)
	return idx, true
}
