package syncmap

import "github.com/maildrop/indexsync/pkg/mailindex"

// ModseqExtName is the extension whose introduction enables modseq
// tracking for a map.
const ModseqExtName = "modseq"

// modseqSync is the per-pass modseq sub-applier. It brackets one sync pass
// and keeps the map's per-message modseq vector shaped to the record array
// through appends and expunges. All operations are no-ops until tracking
// has been enabled by a modseq extension introduction.
type modseqSync struct {
	c     *Context
	ended bool
}

func (ms *modseqSync) tracker() *mailindex.ModseqTracker {
	return ms.c.cur.Modseq
}

// enable allocates the tracker on the working map, one slot per existing
// record, all at modseq 1 so later updates can only raise them.
func (ms *modseqSync) enable() {
	if ms.c.cur.Modseq != nil {
		return
	}
	t := &mailindex.ModseqTracker{HighestModseq: 1}
	t.PerMessage = make([]uint64, ms.c.cur.Rec.RecordsCount)
	for i := range t.PerMessage {
		t.PerMessage[i] = 1
	}
	ms.c.cur.Modseq = t
}

// append extends the vector for a newly appended record.
func (ms *modseqSync) append(newRecordsCount uint32) {
	t := ms.tracker()
	if t == nil {
		return
	}
	for uint32(len(t.PerMessage)) < newRecordsCount {
		t.PerMessage = append(t.PerMessage, t.NextModseq())
	}
}

// expunge removes the vector slots for an expunged sequence range.
func (ms *modseqSync) expunge(seq1, seq2 uint32) {
	t := ms.tracker()
	if t == nil {
		return
	}
	if seq2 > uint32(len(t.PerMessage)) {
		seq2 = uint32(len(t.PerMessage))
	}
	if seq1 == 0 || seq1 > seq2 {
		return
	}
	t.PerMessage = append(t.PerMessage[:seq1-1], t.PerMessage[seq2:]...)
}

// updateFlags raises the modseq of every record in [seq1, seq2] because a
// flag in mask changed on it.
func (ms *modseqSync) updateFlags(mask mailindex.MessageFlags, seq1, seq2 uint32) {
	t := ms.tracker()
	if t == nil || mask == 0 {
		return
	}
	if seq2 > uint32(len(t.PerMessage)) {
		seq2 = uint32(len(t.PerMessage))
	}
	for seq := seq1; seq <= seq2; seq++ {
		t.PerMessage[seq-1] = t.NextModseq()
	}
}

// set raises the record's modseq to at least modseq. Returns -1 when
// tracking was never enabled (the log is corrupted: modseqs were updated
// before they existed), 0 when the stored value is already at or above
// modseq, 1 when applied.
func (ms *modseqSync) set(seq uint32, modseq uint64) int {
	t := ms.tracker()
	if t == nil {
		return -1
	}
	if seq == 0 || seq > uint32(len(t.PerMessage)) {
		return 0
	}
	if t.PerMessage[seq-1] >= modseq {
		return 0
	}
	t.PerMessage[seq-1] = modseq
	if modseq > t.HighestModseq {
		t.HighestModseq = modseq
	}
	return 1
}

// mapReplaced is called whenever the working map pointer changes; the
// tracker travels with the map, so there is nothing to migrate, but the
// hook stays to mirror the replace notifications the rest of the applier
// gets.
func (ms *modseqSync) mapReplaced() {}

// end closes the bracket for this pass.
func (ms *modseqSync) end() {
	ms.ended = true
}

// ignoredWithinCommit reports whether the transaction at the view's
// current position lies inside the caller's just-committed transaction
// window; ignored modseq updates there are counted rather than silently
// dropped.
func (c *Context) ignoredWithinCommit() bool {
	result := c.idx.SyncCommitResult
	if result == nil {
		return false
	}
	prevSeq, prevOffset := c.logView.PrevPos()
	if prevSeq != result.LogFileSeq {
		return false
	}
	end := result.LogFileOffset
	start := end - result.CommitSize
	return prevOffset >= start && prevOffset < end
}
