package mailindex

// RecordMap owns the flat array of fixed-size message records shared by one
// or more Maps. It is the row store component: sequence numbers are 1-based
// positions into Buffer, and every mutation here is either an append, a
// leftward compacting move, or a full clone taken for copy-on-write.
type RecordMap struct {
	Buffer []byte // records_count*RecordSize bytes, capacity may exceed that

	RecordSize      uint32
	RecordsCount    uint32
	LastAppendedUID uint32

	refcount int32
	maps     map[*Map]struct{} // back-references for counter fan-out
}

// NewRecordMap allocates an empty record map for the given record size.
func NewRecordMap(recordSize uint32) *RecordMap {
	if recordSize < BaseRecordSize {
		recordSize = BaseRecordSize
	}
	return &RecordMap{
		RecordSize: recordSize,
		refcount:   1,
		maps:       make(map[*Map]struct{}),
	}
}

// Ref increments the refcount and returns rm for chaining.
func (rm *RecordMap) Ref() *RecordMap {
	rm.refcount++
	return rm
}

// Unref decrements the refcount. Callers drop their pointer after calling
// this; RecordMap does not free itself, the garbage collector does once
// nothing references it.
func (rm *RecordMap) Unref() {
	rm.refcount--
}

// Shared reports whether more than one Map currently holds this record map,
// the precondition for copy-on-write.
func (rm *RecordMap) Shared() bool {
	return rm.refcount > 1
}

// Clone returns a private deep copy with refcount 1 and no back-references;
// the caller is responsible for registering the clone with whichever Map
// now owns it.
func (rm *RecordMap) Clone() *RecordMap {
	buf := make([]byte, len(rm.Buffer), cap(rm.Buffer))
	copy(buf, rm.Buffer)
	return &RecordMap{
		Buffer:          buf,
		RecordSize:      rm.RecordSize,
		RecordsCount:    rm.RecordsCount,
		LastAppendedUID: rm.LastAppendedUID,
		refcount:        1,
		maps:            make(map[*Map]struct{}),
	}
}

// AddMap / RemoveMap maintain the weak-reference set used by counter
// fan-out: every Map sharing this record map sees consistent seen/deleted
// counters after any flag-touching record.
func (rm *RecordMap) AddMap(m *Map)    { rm.maps[m] = struct{}{} }
func (rm *RecordMap) RemoveMap(m *Map) { delete(rm.maps, m) }

// SiblingMaps returns every Map currently sharing this record map.
func (rm *RecordMap) SiblingMaps() []*Map {
	out := make([]*Map, 0, len(rm.maps))
	for m := range rm.maps {
		out = append(out, m)
	}
	return out
}

// recordOffset returns the byte offset of sequence seq (1-based).
func (rm *RecordMap) recordOffset(seq uint32) int {
	return int(seq-1) * int(rm.RecordSize)
}

// RecordAt returns the raw bytes of the record at 1-based sequence seq.
// The returned slice aliases Buffer; callers must not retain it across a
// mutation.
func (rm *RecordMap) RecordAt(seq uint32) []byte {
	off := rm.recordOffset(seq)
	return rm.Buffer[off : off+int(rm.RecordSize)]
}

// UIDAt and FlagsAt read the base fields of the record at seq.
func (rm *RecordMap) UIDAt(seq uint32) uint32 { return uidAt(rm.Buffer, rm.recordOffset(seq)) }

func (rm *RecordMap) FlagsAt(seq uint32) MessageFlags {
	return flagsAt(rm.Buffer, rm.recordOffset(seq))
}

// SetFlagsAt writes the flags byte of the record at seq.
func (rm *RecordMap) SetFlagsAt(seq uint32, flags MessageFlags) {
	putFlagsAt(rm.Buffer, rm.recordOffset(seq), flags)
}

// Append grows the buffer by one record,
// zero-fills any extension bytes beyond the base, writes uid/flags, and
// bumps records_count and last_appended_uid.
func (rm *RecordMap) Append(uid uint32, flags MessageFlags, ext []byte) {
	off := len(rm.Buffer)
	rm.Buffer = append(rm.Buffer, make([]byte, rm.RecordSize)...)
	putUIDAt(rm.Buffer, off, uid)
	putFlagsAt(rm.Buffer, off, flags)
	if len(ext) > 0 {
		n := copy(rm.Buffer[off+BaseRecordSize:off+int(rm.RecordSize)], ext)
		_ = n
	}
	rm.RecordsCount++
	rm.LastAppendedUID = uid
}

// Grow widens every existing record to newRecordSize, preserving the base
// fields and zero-filling the newly added extension space. Used when an
// EXT_INTRO registers an extension after records already exist.
func (rm *RecordMap) Grow(newRecordSize uint32) {
	if newRecordSize <= rm.RecordSize {
		return
	}
	out := make([]byte, int(rm.RecordsCount)*int(newRecordSize), int(rm.RecordsCount)*int(newRecordSize)*2+int(newRecordSize))
	for seq := uint32(1); seq <= rm.RecordsCount; seq++ {
		srcOff := rm.recordOffset(seq)
		dstOff := int(seq-1) * int(newRecordSize)
		copy(out[dstOff:dstOff+int(rm.RecordSize)], rm.Buffer[srcOff:srcOff+int(rm.RecordSize)])
	}
	rm.Buffer = out
	rm.RecordSize = newRecordSize
}

// SeqRange is an inclusive 1-based sequence range [Start, End].
type SeqRange struct {
	Start, End uint32
}

// Compact is a single left-to-right pass that
// closes the gaps left by a sorted, disjoint set of sequence ranges,
// tolerating overlapping leftward moves (copy, not append).
//
// ranges must be sorted ascending and disjoint with ranges[i].End <
// ranges[i+1].Start. The caller (the expunge engine) is responsible for
// producing ranges in that shape.
func (rm *RecordMap) Compact(ranges []SeqRange) {
	if len(ranges) == 0 {
		return
	}
	rs := int(rm.RecordSize)
	dest := uint32(1)
	prevEnd := uint32(0)
	removed := uint32(0)

	moveBlock := func(srcStart, srcEnd, dstStart uint32) {
		if srcStart > srcEnd {
			return
		}
		n := int(srcEnd-srcStart+1) * rs
		srcOff := int(srcStart-1) * rs
		dstOff := int(dstStart-1) * rs
		copy(rm.Buffer[dstOff:dstOff+n], rm.Buffer[srcOff:srcOff+n])
	}

	for _, r := range ranges {
		if prevEnd+1 <= r.Start-1 {
			blockLen := r.Start - 1 - (prevEnd + 1) + 1
			moveBlock(prevEnd+1, r.Start-1, dest)
			dest += blockLen
		}
		removed += r.End - r.Start + 1
		prevEnd = r.End
	}
	if prevEnd+1 <= rm.RecordsCount {
		moveBlock(prevEnd+1, rm.RecordsCount, dest)
		dest += rm.RecordsCount - prevEnd
	}

	rm.RecordsCount -= removed
	rm.Buffer = rm.Buffer[:int(rm.RecordsCount)*rs]
}

// SeqOfUID finds the 1-based sequence of uid via binary search, since UIDs
// are strictly increasing with sequence.
func (rm *RecordMap) SeqOfUID(uid uint32) (uint32, bool) {
	lo, hi := uint32(1), rm.RecordsCount
	for lo <= hi {
		mid := lo + (hi-lo)/2
		v := rm.UIDAt(mid)
		switch {
		case v == uid:
			return mid, true
		case v < uid:
			lo = mid + 1
		default:
			if mid == 0 {
				return 0, false
			}
			hi = mid - 1
		}
	}
	return 0, false
}

// SeqRangeOfUIDRange resolves a UID range to a sequence range via binary
// search for the smallest sequence with uid >= lo and the largest with uid
// <= hi. Returns ok=false if the range contains no existing record.
func (rm *RecordMap) SeqRangeOfUIDRange(loUID, hiUID uint32) (SeqRange, bool) {
	startSeq, ok := rm.firstSeqAtLeast(loUID)
	if !ok {
		return SeqRange{}, false
	}
	endSeq, ok := rm.lastSeqAtMost(hiUID)
	if !ok || endSeq < startSeq {
		return SeqRange{}, false
	}
	return SeqRange{Start: startSeq, End: endSeq}, true
}

func (rm *RecordMap) firstSeqAtLeast(uid uint32) (uint32, bool) {
	lo, hi := uint32(1), rm.RecordsCount
	result := uint32(0)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if rm.UIDAt(mid) >= uid {
			result = mid
			if mid == 0 {
				break
			}
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return result, result != 0
}

func (rm *RecordMap) lastSeqAtMost(uid uint32) (uint32, bool) {
	lo, hi := uint32(1), rm.RecordsCount
	result := uint32(0)
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if rm.UIDAt(mid) <= uid {
			result = mid
			lo = mid + 1
		} else {
			if mid == 0 {
				break
			}
			hi = mid - 1
		}
	}
	return result, result != 0
}
