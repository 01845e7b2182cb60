package mailindex

// Map is the in-memory index for one mailbox: a header, a byte-for-byte
// mirror of that header ready to be written back to storage, a shared
// record map, and the refcount that governs whether a mutation may touch
// it directly or must clone first.
type Map struct {
	Header     Header
	HdrCopyBuf []byte
	Rec        *RecordMap
	Residence  Residence

	Extensions []Extension
	Keywords   []string
	Modseq     *ModseqTracker // nil until modseq tracking is enabled

	refcount int32
}

// NewMap allocates a fresh Map over rec, with refcount 1. The header copy
// buffer starts as the serialized header.
func NewMap(hdr Header, rec *RecordMap) *Map {
	m := &Map{Header: hdr, Rec: rec, Residence: ResidenceMemory, refcount: 1}
	m.HdrCopyBuf = make([]byte, hdr.HeaderSize)
	m.Header.Encode(m.HdrCopyBuf)
	rec.AddMap(m)
	return m
}

// NewEmptyMap allocates a map with a fresh header and empty record map,
// the shape a brand-new mailbox or a log reset starts from.
func NewEmptyMap(recordSize uint32) *Map {
	hdr := NewHeader(recordSize)
	return NewMap(hdr, NewRecordMap(hdr.RecordSize))
}

// Ref increments the refcount and returns m for chaining.
func (m *Map) Ref() *Map {
	m.refcount++
	return m
}

// Unref decrements the refcount and, when it was the last reference,
// detaches m from its record map's fan-out set.
func (m *Map) Unref() {
	m.refcount--
	if m.refcount <= 0 {
		m.Rec.RemoveMap(m)
		m.Rec.Unref()
	}
}

// Shared reports refcount > 1, the precondition for copy-on-write.
func (m *Map) Shared() bool {
	return m.refcount > 1
}

// Clone returns a private copy of the Map itself. Cloning the Map does not
// clone the RecordMap: the clone shares Rec (with an incremented refcount)
// until something actually mutates records, at which point
// MoveToPrivateMemory or GetAtomicMap forks it.
func (m *Map) Clone() *Map {
	hdrCopy := make([]byte, len(m.HdrCopyBuf))
	copy(hdrCopy, m.HdrCopyBuf)
	exts := make([]Extension, len(m.Extensions))
	copy(exts, m.Extensions)
	kws := make([]string, len(m.Keywords))
	copy(kws, m.Keywords)
	clone := &Map{
		Header:     m.Header.Clone(),
		HdrCopyBuf: hdrCopy,
		Rec:        m.Rec.Ref(),
		Residence:  m.Residence,
		Extensions: exts,
		Keywords:   kws,
		Modseq:     m.Modseq.Clone(),
		refcount:   1,
	}
	clone.Rec.AddMap(clone)
	return clone
}

// MoveToPrivateMemory returns the Map that should be used from here on:
// either m itself, or a private clone if m was shared. If the returned
// map's record bytes are mmap-backed, they are materialized into a private
// growable buffer first, since mmap regions cannot be appended to or
// compacted in place.
func MoveToPrivateMemory(m *Map) *Map {
	out := m
	if m.Shared() {
		clone := m.Clone()
		m.Unref()
		out = clone
	}
	if out.Residence == ResidenceMmap {
		old := out.Rec
		old.RemoveMap(out)
		out.Rec = old.Clone()
		old.Unref()
		out.Rec.AddMap(out)
		out.Residence = ResidenceMemory
	}
	return out
}

// GetAtomicMap is MoveToPrivateMemory plus forking the record map if any
// sibling still shares it, so the caller is guaranteed sole ownership of
// both the Map and its RecordMap.
func GetAtomicMap(m *Map) *Map {
	out := MoveToPrivateMemory(m)
	if out.Rec.Shared() {
		old := out.Rec
		old.RemoveMap(out)
		out.Rec = old.Clone()
		old.Unref()
		out.Rec.AddMap(out)
	}
	return out
}

// CommitResult describes the transaction the caller just committed to the
// log before starting a sync. The modseq sub-applier consults it to count
// modseq updates that were ignored because this same process wrote them.
type CommitResult struct {
	LogFileSeq    uint32
	LogFileOffset uint32 // end offset of the committed transaction
	CommitSize    uint32

	IgnoredModseqChanges uint32
}

// Index owns the single "published" Map a mailbox currently exposes to
// FILE/HEAD sync callers. VIEW syncs never rebind this pointer: they work
// against a private Map that the caller holds directly.
type Index struct {
	// Name identifies the mailbox in logs and errors, typically the index
	// file path.
	Name string

	// DeleteRequested is set by a non-external INDEX_DELETED record and
	// cleared by INDEX_UNDELETED. Only the request is recorded; this
	// package does not delete anything.
	DeleteRequested bool

	// WantRewrite is a hint that the log distance since the last index
	// write has grown past the configured threshold.
	WantRewrite bool

	// SyncCommitResult, when non-nil, brackets the caller's just-committed
	// transaction for the duration of the next sync.
	SyncCommitResult *CommitResult

	current *Map
	closed  bool
}

// NewIndex wraps an initial Map as the index's published current map.
func NewIndex(name string, m *Map) *Index {
	return &Index{Name: name, current: m}
}

// Current returns the currently published Map, reffed for the caller.
func (idx *Index) Current() (*Map, error) {
	if idx.closed {
		return nil, ErrClosed
	}
	return idx.current.Ref(), nil
}

// CurrentMap returns the published map without reffing it; for inspection
// only.
func (idx *Index) CurrentMap() *Map {
	return idx.current
}

// ReplaceMap swaps the index's published pointer to newMap, which the
// caller has already reffed for the index. Only FILE/HEAD syncs call this;
// the caller has already finalized log offsets on the map being retired.
func (idx *Index) ReplaceMap(newMap *Map) {
	old := idx.current
	idx.current = newMap
	old.Unref()
}

// Close marks the index unusable for further syncs.
func (idx *Index) Close() {
	idx.closed = true
}
