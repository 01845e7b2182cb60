package syncmap

import (
	"github.com/maildrop/indexsync/internal/logger"
	"github.com/maildrop/indexsync/pkg/mailindex"
)

// FsckMap repairs a map's redundant header state from its record array:
// counters, lowwaters, next_uid, the dirty bit, and messages_count are all
// recomputed; a UID ordering violation truncates the map at the first bad
// record. The FSCKD flag is stamped so later syncs know a repair happened.
//
// The map must be privately owned by the caller.
func FsckMap(m *mailindex.Map) {
	hdr := &m.Header

	if hdr.MessagesCount > m.Rec.RecordsCount {
		hdr.MessagesCount = m.Rec.RecordsCount
	}

	var (
		seen, deleted   uint32
		unseenLowwater  = uint32(0)
		deletedLowwater = uint32(0)
		haveDirty       bool
		prevUID         uint32
	)

	for seq := uint32(1); seq <= hdr.MessagesCount; seq++ {
		uid := m.Rec.UIDAt(seq)
		if uid <= prevUID {
			// Ordering is unrecoverable from here on; everything at and
			// past this record is dropped.
			hdr.MessagesCount = seq - 1
			break
		}
		prevUID = uid

		flags := m.Rec.FlagsAt(seq)
		if flags&mailindex.FlagSeen != 0 {
			seen++
		} else if unseenLowwater == 0 {
			unseenLowwater = uid
		}
		if flags&mailindex.FlagDeleted != 0 {
			deleted++
			if deletedLowwater == 0 {
				deletedLowwater = uid
			}
		}
		if flags&mailindex.FlagDirty != 0 {
			haveDirty = true
		}
	}

	if hdr.NextUID <= prevUID {
		hdr.NextUID = prevUID + 1
	}
	hdr.SeenMessagesCount = seen
	hdr.DeletedMessagesCount = deleted
	if unseenLowwater == 0 {
		unseenLowwater = hdr.NextUID
	}
	if deletedLowwater == 0 {
		deletedLowwater = hdr.NextUID
	}
	hdr.FirstUnseenUIDLowwater = unseenLowwater
	hdr.FirstDeletedUIDLowwater = deletedLowwater

	hdr.Flags &^= mailindex.HeaderFlagHaveDirty
	if haveDirty {
		hdr.Flags |= mailindex.HeaderFlagHaveDirty
	}
	hdr.Flags &^= mailindex.HeaderFlagCorrupted
	hdr.Flags |= mailindex.HeaderFlagFsckd

	if uint32(len(m.HdrCopyBuf)) < hdr.HeaderSize {
		grown := make([]byte, hdr.HeaderSize)
		copy(grown, m.HdrCopyBuf)
		m.HdrCopyBuf = grown
	}
	hdr.Encode(m.HdrCopyBuf)

	logger.Info("index repaired",
		logger.Uint32(logger.KeyMessagesCount, hdr.MessagesCount),
		logger.Uint32(logger.KeySeenCount, hdr.SeenMessagesCount),
		logger.Uint32(logger.KeyDeletedCount, hdr.DeletedMessagesCount))
}
