package mailindex

// UpdateCounts applies a single record's flag transition to the header's
// redundant counters. The caller has already decided which header(s) the
// transition fans out to; this function only does the arithmetic and the
// sanity checks on it.
//
// Returns a CorruptionError naming the broken counter when the transition
// is impossible against the current counts (the record stream and the
// counters have diverged). A broken seen counter, or a deleted decrement,
// leaves that counter unchanged; a deleted increment is applied before its
// bound is checked, so it stays applied. A seen error returns before the
// deleted flag is looked at.
//
// Ordering matters for the boundary checks: APPEND calls this after
// messages_count has been incremented, EXPUNGE before it is decremented.
func UpdateCounts(hdr *Header, oldFlags, newFlags MessageFlags) error {
	if (oldFlags^newFlags)&FlagSeen != 0 {
		if oldFlags&FlagSeen != 0 {
			if hdr.SeenMessagesCount == 0 {
				return NewCorruption("Seen counter wrong")
			}
			hdr.SeenMessagesCount--
		} else {
			if hdr.SeenMessagesCount >= hdr.MessagesCount {
				return NewCorruption("Seen counter wrong")
			}
			hdr.SeenMessagesCount++
			if hdr.SeenMessagesCount == hdr.MessagesCount {
				hdr.FirstUnseenUIDLowwater = hdr.NextUID
			}
		}
	}

	if (oldFlags^newFlags)&FlagDeleted != 0 {
		if oldFlags&FlagDeleted == 0 {
			hdr.DeletedMessagesCount++
			if hdr.DeletedMessagesCount > hdr.MessagesCount {
				return NewCorruption("Deleted counter wrong")
			}
		} else {
			if hdr.DeletedMessagesCount == 0 ||
				hdr.DeletedMessagesCount > hdr.MessagesCount {
				return NewCorruption("Deleted counter wrong")
			}
			hdr.DeletedMessagesCount--
			if hdr.DeletedMessagesCount == 0 {
				hdr.FirstDeletedUIDLowwater = hdr.NextUID
			}
		}
	}
	return nil
}

// UpdateLowwaters tightens the header's unseen/deleted lowwater marks for a
// record that now carries flags. Lowwaters only ever move down here; they
// are raised back up by UpdateCounts when a counter hits its bound.
func UpdateLowwaters(hdr *Header, uid uint32, flags MessageFlags) {
	if flags&FlagSeen == 0 && uid < hdr.FirstUnseenUIDLowwater {
		hdr.FirstUnseenUIDLowwater = uid
	}
	if flags&FlagDeleted != 0 && uid < hdr.FirstDeletedUIDLowwater {
		hdr.FirstDeletedUIDLowwater = uid
	}
}
