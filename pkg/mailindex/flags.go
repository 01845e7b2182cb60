package mailindex

// MessageFlags are the per-message flag bits stored in a record's Flags
// byte. They mirror the small, fixed flag set every mailbox record carries
// inline, as opposed to keywords which are arbitrary and stored out of line.
type MessageFlags uint8

const (
	FlagAnswered MessageFlags = 1 << 0
	FlagFlagged  MessageFlags = 1 << 1
	FlagDeleted  MessageFlags = 1 << 2
	FlagSeen     MessageFlags = 1 << 3
	FlagDraft    MessageFlags = 1 << 4
	FlagRecent   MessageFlags = 1 << 5

	// FlagDirty marks a record whose flags were changed in the index but not
	// yet written back to the message store. Any record carrying it forces
	// HeaderFlagHaveDirty on the header at the end of a sync.
	FlagDirty MessageFlags = 1 << 7

	FlagsMask MessageFlags = FlagAnswered | FlagFlagged | FlagDeleted | FlagSeen | FlagDraft | FlagRecent
)

// HeaderFlags are the header-level status bits in Header.Flags.
type HeaderFlags uint32

const (
	// HeaderFlagCorrupted marks the index as known-bad; readers must treat
	// the whole map as unusable until a full resync rebuilds it.
	HeaderFlagCorrupted HeaderFlags = 1 << 0

	// HeaderFlagFsckd marks that an integrity check has already rewritten
	// this index once; a second corruption before the next successful sync
	// means whatever is producing bad records is still active.
	HeaderFlagFsckd HeaderFlags = 1 << 1

	// HeaderFlagHaveDirty means at least one message carries FlagDirty-like
	// pending-save state and a header rewrite is owed before next open.
	HeaderFlagHaveDirty HeaderFlags = 1 << 2
)
