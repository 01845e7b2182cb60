package syncmap

// expungeRanges removes every record in the (sorted, merged) sequence
// range set: handlers first, then counter updates as if each record's
// flags dropped to zero, then a single compaction pass over the record
// array. The working map is forked to sole ownership before anything is
// touched, so sibling views keep seeing the pre-expunge records.
func (c *Context) expungeRanges(set *seqRangeSet) {
	if set.empty() {
		return
	}

	m := c.getAtomicMap()

	// Expunge handlers see every record at its current location, before
	// any mutation.
	if c.initExpungeHandlers() {
		for _, h := range c.expungeHandlers {
			for _, r := range set.ranges {
				for seq := r.Start; seq <= r.End; seq++ {
					h.fn(c, seq, m.ExtRecord(h.extIdx, seq), h.userCtx)
				}
			}
		}
	}

	// Counter updates happen while messages_count still includes the
	// doomed records: each one's flags transition to zero.
	for _, r := range set.ranges {
		for seq := r.Start; seq <= r.End; seq++ {
			c.updateCounts(m.Rec.UIDAt(seq), m.Rec.FlagsAt(seq), 0)
		}
	}

	// The modseq vector shrinks range by range; walking backwards keeps
	// the earlier ranges' indices valid while later ones are cut out.
	for i := len(set.ranges) - 1; i >= 0; i-- {
		c.modseq.expunge(set.ranges[i].Start, set.ranges[i].End)
	}

	removed := set.count()
	m.Rec.Compact(set.ranges)
	m.Header.MessagesCount -= removed
	observeExpunged(c.metrics, int(removed))
}

// collectSeqRanges resolves UID ranges to the sequence range set,
// dropping UIDs that no longer exist in the map.
func (c *Context) collectSeqRanges(uidRanges []uidRange) *seqRangeSet {
	set := &seqRangeSet{}
	for _, ur := range uidRanges {
		if r, ok := c.lookupSeqRange(ur.uid1, ur.uid2); ok {
			set.add(r.Start, r.End)
		}
	}
	return set
}

type uidRange struct {
	uid1, uid2 uint32
}
