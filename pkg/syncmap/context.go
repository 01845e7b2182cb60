// Package syncmap advances a mailbox index map by replaying transaction
// records from the mailbox's transaction log. The Syncer owns the map for
// the duration of one SyncMap call: it opens a log view at the map's
// recorded offset, dispatches each record through the applier, maintains
// the header's redundant counters and lowwater marks, drives expunge
// handlers, and publishes the resulting map back to the index.
//
// Corruption found in any single record is recorded and logged, the record
// is abandoned, and replay continues; the driver runs fsck at the end of a
// pass that saw errors.
package syncmap

import (
	"context"

	"github.com/maildrop/indexsync/internal/logger"
	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/txlog"
)

// Type selects the sync flavor, which governs whether the index's
// published map pointer may be rebound and whether expunge handlers run.
type Type int

const (
	// TypeFile syncs the on-disk index file forward: starts from the tail
	// offset, runs expunge handlers, may skip already-applied records, and
	// rebinds the index's published map.
	TypeFile Type = iota

	// TypeView syncs a view-private map; the index's published pointer is
	// never touched.
	TypeView

	// TypeHead syncs the published map to the log head without the
	// file-sync extras.
	TypeHead
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeView:
		return "view"
	case TypeHead:
		return "head"
	default:
		return "unknown"
	}
}

// Context is the transient per-sync state: the working map, the log view
// cursor, the extension state machine, and the corruption flag.
type Context struct {
	ctx     context.Context
	idx     *mailindex.Index
	cur     *mailindex.Map
	logView *txlog.View
	typ     Type

	noDirty bool
	reg     *Registry
	metrics Metrics

	modseq *modseqSync

	// Extension state machine: the most recent EXT_INTRO selects which
	// extension the following ext records target.
	curExtIdx        uint32
	curExtRecordSize uint32
	curExtIgnore     bool

	// Position of the most recent EXT_INTRO, for the resume-through-intro
	// rule in updateLogOffset.
	extIntroSeq       uint32
	extIntroOffset    uint32
	extIntroEndOffset uint32

	expungeHandlers    []resolvedExpungeHandler
	expungeHandlersSet bool

	errors            bool
	unknownExtensions []string
}

func newContext(ctx context.Context, idx *mailindex.Index, m *mailindex.Map,
	view *txlog.View, typ Type, noDirty bool, reg *Registry, metrics Metrics) *Context {

	c := &Context{
		ctx:       ctx,
		idx:       idx,
		cur:       m,
		logView:   view,
		typ:       typ,
		noDirty:   noDirty,
		reg:       reg,
		metrics:   metrics,
		curExtIdx: mailindex.ExtNone,
	}
	c.modseq = &modseqSync{c: c}
	return c
}

// Map returns the context's current working map. Expunge handlers may call
// this to inspect records they are being notified about.
func (c *Context) Map() *mailindex.Map {
	return c.cur
}

// Errors reports whether any record in this pass was found corrupted.
func (c *Context) Errors() bool {
	return c.errors
}

// setCorrupted records a corruption condition: the current record is
// abandoned, replay continues, fsck runs at the end of the pass.
func (c *Context) setCorrupted(format string, args ...any) {
	c.errors = true
	observeCorruption(c.metrics)
	logger.ErrorCtx(c.ctx, "index corrupted",
		logger.String(logger.KeyMailbox, c.idx.Name),
		logger.String(logger.KeyCorrupted, logger.Sprintf(format, args...)))
}

// ============================================================================
// Copy-on-write map handling
// ============================================================================

// replaceMap retires the current working map in favor of newMap:
// finalizes log offsets on the retired map, rebinds the index's published
// pointer for FILE/HEAD syncs, and notifies the modseq sub-applier.
func (c *Context) replaceMap(newMap *mailindex.Map) {
	c.updateLogOffset(c.cur, false)
	if c.typ != TypeView {
		c.idx.ReplaceMap(newMap.Ref())
	}
	c.cur.Unref()
	c.cur = newMap
	c.modseq.mapReplaced()
}

// moveToPrivateMemory guarantees the working map is private (cloning a
// shared one) and its record bytes live in growable memory (materializing
// an mmap residence).
func (c *Context) moveToPrivateMemory() *mailindex.Map {
	if c.cur.Shared() {
		clone := c.cur.Clone()
		c.replaceMap(clone)
	}
	if c.cur.Residence == mailindex.ResidenceMmap {
		old := c.cur.Rec
		c.cur.Rec = old.Clone()
		old.RemoveMap(c.cur)
		old.Unref()
		c.cur.Rec.AddMap(c.cur)
		c.cur.Residence = mailindex.ResidenceMemory
		c.modseq.mapReplaced()
	}
	return c.cur
}

// getAtomicMap is moveToPrivateMemory plus forking the record map away
// from any sibling maps still sharing it.
func (c *Context) getAtomicMap() *mailindex.Map {
	c.moveToPrivateMemory()
	if c.cur.Rec.Shared() {
		old := c.cur.Rec
		c.cur.Rec = old.Clone()
		old.RemoveMap(c.cur)
		old.Unref()
		c.cur.Rec.AddMap(c.cur)
	}
	c.modseq.mapReplaced()
	return c.cur
}

// ============================================================================
// Counter / lowwater fan-out
// ============================================================================

// updateCounts applies a flag transition to the working map's header only.
func (c *Context) updateCounts(uid uint32, oldFlags, newFlags mailindex.MessageFlags) {
	if uid >= c.cur.Header.NextUID {
		c.setCorrupted("uid %d >= next_uid %d", uid, c.cur.Header.NextUID)
		return
	}
	if err := mailindex.UpdateCounts(&c.cur.Header, oldFlags, newFlags); err != nil {
		c.setCorrupted("%s", corruptionReason(err))
	}
}

// updateCountsAll fans a flag transition out to every map sharing the
// record map, so sibling views keep consistent counters. Maps that don't
// contain the uid yet (next_uid too small) are skipped.
func (c *Context) updateCountsAll(uid uint32, oldFlags, newFlags mailindex.MessageFlags) {
	for _, m := range c.cur.Rec.SiblingMaps() {
		if uid >= m.Header.NextUID {
			continue
		}
		if err := mailindex.UpdateCounts(&m.Header, oldFlags, newFlags); err != nil {
			c.setCorrupted("%s", corruptionReason(err))
		}
	}
}

// updateLowwatersAll tightens the unseen/deleted lowwaters on every map
// sharing the record map.
func (c *Context) updateLowwatersAll(uid uint32, flags mailindex.MessageFlags) {
	for _, m := range c.cur.Rec.SiblingMaps() {
		mailindex.UpdateLowwaters(&m.Header, uid, flags)
	}
}

func corruptionReason(err error) string {
	if ce, ok := err.(*mailindex.CorruptionError); ok {
		return ce.Reason
	}
	return err.Error()
}

// ============================================================================
// Log offset finalization
// ============================================================================

// updateLogOffset finalizes the map's recorded log position. At end of log
// the tail offset resets when the file seq moved. Mid-sync (a map being
// retired by replaceMap), if the previous transaction was an extension
// introduction the offset backs up to the intro's start so a successor
// view re-entering sync reprocesses the intro.
func (c *Context) updateLogOffset(m *mailindex.Map, eol bool) {
	prevSeq, prevOffset := c.logView.PrevPos()
	if prevSeq == 0 {
		// handling lost changes in view syncing
		return
	}

	if !eol {
		if prevOffset == c.extIntroEndOffset && prevSeq == c.extIntroSeq {
			// The previous transaction was an extension introduction; if any
			// more views want to continue syncing they need the intro, so
			// back up to its start. Not done at end of log, so the final
			// intro isn't re-synced over and over.
			prevOffset = c.extIntroOffset
		}
		m.Header.LogFileSeq = prevSeq
	} else {
		if m.Header.LogFileSeq != prevSeq {
			m.Header.LogFileSeq = prevSeq
			m.Header.LogFileTailOffset = 0
		}
	}
	m.Header.LogFileHeadOffset = prevOffset
}

// ============================================================================
// Sequence lookups (bounded by messages_count, not records_count)
// ============================================================================

// lookupSeq resolves a UID to its sequence in the working map.
func (c *Context) lookupSeq(uid uint32) (uint32, bool) {
	seq, ok := c.cur.Rec.SeqOfUID(uid)
	if !ok || seq > c.cur.Header.MessagesCount {
		return 0, false
	}
	return seq, true
}

// lookupSeqRange resolves an inclusive UID range to a sequence range.
func (c *Context) lookupSeqRange(uid1, uid2 uint32) (mailindex.SeqRange, bool) {
	r, ok := c.cur.Rec.SeqRangeOfUIDRange(uid1, uid2)
	if !ok {
		return mailindex.SeqRange{}, false
	}
	if r.Start > c.cur.Header.MessagesCount {
		return mailindex.SeqRange{}, false
	}
	if r.End > c.cur.Header.MessagesCount {
		r.End = c.cur.Header.MessagesCount
	}
	return r, true
}
