package syncmap

import (
	"fmt"
	"os"
	"sync"

	"github.com/maildrop/indexsync/pkg/mailindex"
)

// ignoreCorruptionEnv names the debug toggle that disables the full map
// walk, for reproducing corrupted-index scenarios without tripping over
// the checker first. Read once at first use.
const ignoreCorruptionEnv = "INDEXSYNC_DEBUG_IGNORE_CORRUPTION"

var ignoreCorruption = sync.OnceValue(func() bool {
	return os.Getenv(ignoreCorruptionEnv) != ""
})

// MapCheck walks the whole record array validating the invariants the
// applier is supposed to maintain: strictly increasing UIDs, lowwater
// bounds, and counter equality. Returns the first violation found.
func MapCheck(m *mailindex.Map) error {
	if ignoreCorruption() {
		return nil
	}

	hdr := &m.Header
	if hdr.MessagesCount > m.Rec.RecordsCount {
		return fmt.Errorf("messages_count %d > records_count %d",
			hdr.MessagesCount, m.Rec.RecordsCount)
	}

	var seen, deleted uint32
	prevUID := uint32(0)
	for seq := uint32(1); seq <= hdr.MessagesCount; seq++ {
		uid := m.Rec.UIDAt(seq)
		if uid <= prevUID {
			return fmt.Errorf("uid %d at seq %d not above previous %d", uid, seq, prevUID)
		}
		prevUID = uid

		flags := m.Rec.FlagsAt(seq)
		if flags&mailindex.FlagDeleted != 0 {
			if uid < hdr.FirstDeletedUIDLowwater {
				return fmt.Errorf("deleted uid %d below lowwater %d",
					uid, hdr.FirstDeletedUIDLowwater)
			}
			deleted++
		}
		if flags&mailindex.FlagSeen != 0 {
			seen++
		} else if uid < hdr.FirstUnseenUIDLowwater {
			return fmt.Errorf("unseen uid %d below lowwater %d",
				uid, hdr.FirstUnseenUIDLowwater)
		}
	}

	if deleted != hdr.DeletedMessagesCount {
		return fmt.Errorf("deleted count %d != header %d", deleted, hdr.DeletedMessagesCount)
	}
	if seen != hdr.SeenMessagesCount {
		return fmt.Errorf("seen count %d != header %d", seen, hdr.SeenMessagesCount)
	}
	if prevUID >= hdr.NextUID {
		return fmt.Errorf("last uid %d >= next_uid %d", prevUID, hdr.NextUID)
	}
	return nil
}

// CheckHeader validates the header's internal consistency without walking
// records; cheap enough to run on every sync.
func CheckHeader(m *mailindex.Map) error {
	hdr := &m.Header
	if hdr.MessagesCount > m.Rec.RecordsCount {
		return fmt.Errorf("messages_count %d > records_count %d",
			hdr.MessagesCount, m.Rec.RecordsCount)
	}
	if hdr.SeenMessagesCount > hdr.MessagesCount {
		return fmt.Errorf("seen_messages_count %d > messages_count %d",
			hdr.SeenMessagesCount, hdr.MessagesCount)
	}
	if hdr.DeletedMessagesCount > hdr.MessagesCount {
		return fmt.Errorf("deleted_messages_count %d > messages_count %d",
			hdr.DeletedMessagesCount, hdr.MessagesCount)
	}
	if hdr.NextUID == 0 {
		return fmt.Errorf("next_uid is 0")
	}
	if hdr.MessagesCount > 0 && m.Rec.UIDAt(hdr.MessagesCount) >= hdr.NextUID {
		return fmt.Errorf("last uid %d >= next_uid %d",
			m.Rec.UIDAt(hdr.MessagesCount), hdr.NextUID)
	}
	return nil
}
