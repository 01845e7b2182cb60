package syncmap

import (
	"context"
	"errors"
	"time"

	"github.com/maildrop/indexsync/internal/logger"
	"github.com/maildrop/indexsync/pkg/mailindex"
	"github.com/maildrop/indexsync/pkg/txlog"
)

// DefaultRewriteMinLogBytes is the log distance past which an index
// rewrite is hinted.
const DefaultRewriteMinLogBytes = 32 * 1024

// Status reports how a sync pass ended, error cases aside.
type Status int

const (
	// StatusOK means the map was advanced to the requested log position.
	StatusOK Status = iota

	// StatusLostLog means the map's recorded log position no longer exists
	// and the log was not reset; the caller typically rebuilds from
	// scratch. Result.Reason says why.
	StatusLostLog
)

func (s Status) String() string {
	if s == StatusLostLog {
		return "lost_log"
	}
	return "ok"
}

// Result carries the non-error outcome of a sync pass.
type Result struct {
	Status Status
	Reason string // human-readable, for StatusLostLog
}

// HeaderWriteBacker flushes a synced map's header mirror into backing
// storage; IndexFile implements it for mmap-resident maps.
type HeaderWriteBacker interface {
	WriteBackHeader(m *mailindex.Map) error
}

// Options tunes a Syncer.
type Options struct {
	// RewriteMinLogBytes is the log distance past which the index is
	// marked as wanting a rewrite. Zero means DefaultRewriteMinLogBytes.
	RewriteMinLogBytes uint32

	// NoDirty disables dirty-flag bookkeeping entirely.
	NoDirty bool

	// DebugChecks runs the full-map integrity walk after every sync.
	DebugChecks bool

	// Metrics, when non-nil, receives sync instrumentation.
	Metrics Metrics

	// Registry holds expunge handlers and extension callbacks.
	Registry *Registry

	// WriteBack, when non-nil, receives the header mirror of an
	// mmap-resident map at the end of a successful sync.
	WriteBack HeaderWriteBacker
}

// Syncer replays a transaction log into an index's maps.
type Syncer struct {
	idx  *mailindex.Index
	log  *txlog.Log
	opts Options
}

// NewSyncer builds a Syncer over one index and its log.
func NewSyncer(idx *mailindex.Index, log *txlog.Log, opts Options) *Syncer {
	if opts.RewriteMinLogBytes == 0 {
		opts.RewriteMinLogBytes = DefaultRewriteMinLogBytes
	}
	return &Syncer{idx: idx, log: log, opts: opts}
}

// SyncMap replays the log into m from its recorded position and returns
// the resulting map, which may be a clone of m or (after a log reset) an
// entirely new map. The caller's reference to m transfers in; the caller
// owns a reference to the returned map.
//
// An I/O or log-corruption failure from the view aborts the pass with an
// error: the map is not mutated past the last successful record and its
// offsets are not advanced. Per-record corruption does not abort; it
// schedules a repair at the end of the pass.
func (s *Syncer) SyncMap(ctx context.Context, m *mailindex.Map, typ Type) (*mailindex.Map, Result, error) {
	start := time.Now()

	lc := logger.NewLogContext(s.idx.Name)
	lc.SyncType = typ.String()
	lc.LogSeq = m.Header.LogFileSeq
	ctx = logger.WithContext(ctx, lc)

	out, res, err := s.syncMap(ctx, m, typ)

	status := res.Status.String()
	if err != nil {
		status = "error"
	}
	observeSync(s.opts.Metrics, typ.String(), status, time.Since(start))
	return out, res, err
}

func (s *Syncer) syncMap(ctx context.Context, m *mailindex.Map, typ Type) (*mailindex.Map, Result, error) {
	startOffset := m.Header.LogFileHeadOffset
	if typ == TypeFile {
		startOffset = m.Header.LogFileTailOffset
	}

	view := s.log.NewView()
	reset, reason, err := view.Set(m.Header.LogFileSeq, startOffset, 0, 0)
	if err != nil {
		if errors.Is(err, txlog.ErrLostLog) {
			logger.WarnCtx(ctx, "sync lost log position",
				logger.String(logger.KeyReason, err.Error()),
				logger.Uint32(logger.KeyLogOffset, startOffset))
			return m, Result{Status: StatusLostLog, Reason: err.Error()}, nil
		}
		return m, Result{}, err
	}

	// Reading far past the map's tail means the index file is badly
	// stale; remember that a rewrite is worth it.
	headSeq, headOffset := s.log.HeadPos()
	if headSeq != m.Header.LogFileSeq ||
		headOffset-m.Header.LogFileTailOffset > s.opts.RewriteMinLogBytes {
		s.idx.WantRewrite = true
	}

	hadDirty := m.Header.Flags&mailindex.HeaderFlagHaveDirty != 0
	if hadDirty {
		// Cleared provisionally; recomputed from the records at the end.
		m.Header.Flags &^= mailindex.HeaderFlagHaveDirty
	}

	c := newContext(ctx, s.idx, m, view, typ, s.opts.NoDirty, s.opts.Registry, s.opts.Metrics)

	if reset {
		// Reset the entire index. Leave only indexid and log position;
		// a previous repair is still worth remembering.
		prevSeq, _ := view.PrevPos()
		hdr := mailindex.NewHeader(mailindex.BaseRecordSize)
		hdr.IndexID = m.Header.IndexID
		if m.Header.Flags&mailindex.HeaderFlagFsckd != 0 {
			hdr.Flags |= mailindex.HeaderFlagFsckd
		}
		hdr.LogFileSeq = prevSeq
		hdr.LogFileTailOffset = 0
		fresh := mailindex.NewMap(hdr, mailindex.NewRecordMap(hdr.RecordSize))
		logger.InfoCtx(ctx, "log was reset, rebuilding map",
			logger.String(logger.KeyReason, reason))
		c.replaceMap(fresh)
	}

	for {
		hdr, payload, ok, err := view.Next()
		if err != nil {
			// I/O or log corruption: abort without advancing offsets.
			return c.cur, Result{}, err
		}
		if !ok {
			break
		}

		prevSeq, prevOffset := view.PrevPos()
		if logIsBefore(prevSeq, prevOffset,
			c.cur.Header.LogFileSeq, c.cur.Header.LogFileHeadOffset) {
			// this has been synced already
			continue
		}

		// Broken entries are skipped; the pass continues.
		c.applyRecord(hdr, payload)
	}

	if hadDirty {
		updateHdrDirtyFlag(c.cur, s.opts.NoDirty)
	}
	c.modseq.end()

	c.updateLogOffset(c.cur, true)

	// The log head tracks the tail offset internally to skip over external
	// transactions; piggy-back the larger value.
	if c.cur.Header.LogFileTailOffset < s.log.Head().Hdr.MaxTailOffset {
		c.cur.Header.LogFileTailOffset = s.log.Head().Hdr.MaxTailOffset
	}

	c.cur.Header.Encode(c.cur.HdrCopyBuf)
	if c.cur.Residence == mailindex.ResidenceMmap && s.opts.WriteBack != nil {
		if err := s.opts.WriteBack.WriteBackHeader(c.cur); err != nil {
			return c.cur, Result{}, err
		}
	}

	if s.opts.DebugChecks {
		if err := MapCheck(c.cur); err != nil {
			c.setCorrupted("map check failed: %s", err.Error())
		}
	}

	if err := CheckHeader(c.cur); err != nil {
		c.setCorrupted("sync produced a broken header: %s", err.Error())
	}
	if c.errors {
		// Repair in place on a privately owned map and republish it.
		c.getAtomicMap()
		FsckMap(c.cur)
	}

	logger.DebugCtx(ctx, "sync finished",
		logger.Uint32(logger.KeyMessagesCount, c.cur.Header.MessagesCount),
		logger.Uint32(logger.KeyLogSeq, c.cur.Header.LogFileSeq),
		logger.Uint32(logger.KeyLogOffset, c.cur.Header.LogFileHeadOffset))

	return c.cur, Result{Status: StatusOK}, nil
}

// updateHdrDirtyFlag rescans for any remaining dirty record once a sync
// that started with the dirty bit set finishes.
func updateHdrDirtyFlag(m *mailindex.Map, noDirty bool) {
	if m.Header.Flags&mailindex.HeaderFlagHaveDirty != 0 || noDirty {
		return
	}
	for seq := uint32(1); seq <= m.Rec.RecordsCount; seq++ {
		if m.Rec.FlagsAt(seq)&mailindex.FlagDirty != 0 {
			m.Header.Flags |= mailindex.HeaderFlagHaveDirty
			break
		}
	}
}

// logIsBefore compares log positions lexicographically.
func logIsBefore(seq, offset, seq2, offset2 uint32) bool {
	return seq < seq2 || (seq == seq2 && offset < offset2)
}
