package mailindex

import (
	"bytes"
	"testing"
)

func TestClone_SharesRecordMap(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	clone := m.Clone()

	if clone.Rec != m.Rec {
		t.Fatal("clone should share the record map until a record mutation")
	}
	if !m.Rec.Shared() {
		t.Error("record map should report shared after clone")
	}

	clone.Header.MessagesCount = 99
	if m.Header.MessagesCount != 0 {
		t.Error("clone header mutation leaked into the original")
	}
}

func TestMoveToPrivateMemory_ClonesSharedMap(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	other := m.Ref() // a second holder

	private := MoveToPrivateMemory(m)
	if private == m {
		t.Fatal("shared map was not cloned")
	}
	if other.Shared() {
		t.Error("original should be back to a single holder")
	}
	other.Unref()
}

func TestMoveToPrivateMemory_MaterializesMmap(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	m.Rec.Append(1, 0, nil)
	m.Residence = ResidenceMmap

	shared := m.Rec
	private := MoveToPrivateMemory(m)

	if private.Residence != ResidenceMemory {
		t.Error("residence still mmap after move")
	}
	if private.Rec == shared {
		t.Error("record map still aliases the mapped region")
	}
	if private.Rec.UIDAt(1) != 1 {
		t.Error("record content lost in materialization")
	}
}

func TestGetAtomicMap_ForksSharedRecordMap(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	m.Rec.Append(1, 0, nil)
	clone := m.Clone() // shares rec

	atomic := GetAtomicMap(clone)
	if atomic.Rec == m.Rec {
		t.Fatal("atomic map still shares the record map")
	}

	// COW isolation: mutate through the atomic map, the sibling must not
	// observe it.
	atomic.Rec.SetFlagsAt(1, FlagSeen)
	if m.Rec.FlagsAt(1) != 0 {
		t.Error("mutation through atomic map visible in sibling")
	}
	atomic.Unref()
}

func TestIndex_ReplaceMap(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	idx := NewIndex("test", m)

	cur, err := idx.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != m {
		t.Fatal("Current returned a different map")
	}
	cur.Unref()

	next := NewEmptyMap(BaseRecordSize)
	idx.ReplaceMap(next.Ref())
	if idx.CurrentMap() != next {
		t.Error("ReplaceMap did not rebind the published pointer")
	}

	idx.Close()
	if _, err := idx.Current(); err != ErrClosed {
		t.Errorf("Current after Close = %v, want ErrClosed", err)
	}
}

func TestHeader_EncodeDecode(t *testing.T) {
	hdr := NewHeader(12)
	hdr.MessagesCount = 7
	hdr.NextUID = 42
	hdr.SeenMessagesCount = 3
	hdr.DeletedMessagesCount = 2
	hdr.Flags = HeaderFlagHaveDirty | HeaderFlagFsckd
	hdr.LogFileSeq = 5
	hdr.LogFileHeadOffset = 1024
	hdr.LogFileTailOffset = 512

	buf := make([]byte, BaseHeaderSize)
	hdr.Encode(buf)

	var got Header
	got.Decode(buf)
	if got != hdr {
		t.Errorf("decode mismatch:\n got %+v\nwant %+v", got, hdr)
	}

	// The messages_count offset is load-bearing: header-update records
	// patch it by byte offset.
	if v := uint32(buf[16]) | uint32(buf[17])<<8 | uint32(buf[18])<<16 | uint32(buf[19])<<24; v != 7 {
		t.Errorf("messages_count not at offset 16: %d", v)
	}
}

func TestRegisterExtension_GrowsHeaderAndRecords(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	m.Rec.Append(1, 0, nil)
	m.Header.MessagesCount = 1
	m.Header.NextUID = 2

	idx := m.RegisterExtension("cache", 3, 16, 8, 4)

	ext := m.Extensions[idx]
	if ext.HdrOffset != BaseHeaderSize || ext.HdrSize != 16 {
		t.Errorf("hdr region = %d+%d", ext.HdrOffset, ext.HdrSize)
	}
	if ext.RecordOffset != BaseRecordSize || ext.RecordSize != 8 {
		t.Errorf("record region = %d+%d", ext.RecordOffset, ext.RecordSize)
	}
	if m.Header.RecordSize != BaseRecordSize+8 {
		t.Errorf("record_size = %d", m.Header.RecordSize)
	}
	if m.Rec.RecordSize != m.Header.RecordSize {
		t.Error("record map width out of sync with header")
	}
	if m.Header.HeaderSize != BaseHeaderSize+16 {
		t.Errorf("header_size = %d", m.Header.HeaderSize)
	}
	if uint32(len(m.HdrCopyBuf)) != m.Header.HeaderSize {
		t.Errorf("hdr copy buf = %d bytes", len(m.HdrCopyBuf))
	}
	if found, ok := m.FindExtension("cache"); !ok || found != idx {
		t.Error("FindExtension did not resolve the registered extension")
	}
}

func TestResetExtension(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)
	m.Rec.Append(1, 0, nil)
	m.Header.MessagesCount = 1
	m.Header.NextUID = 2

	idx := m.RegisterExtension("cache", 1, 4, 4, 4)
	copy(m.ExtHdr(idx), []byte{1, 2, 3, 4})
	copy(m.ExtRecord(idx, 1), []byte{5, 6, 7, 8})

	m.ResetExtension(idx, 2, true)
	if m.Extensions[idx].ResetID != 2 {
		t.Error("reset id not stamped")
	}
	if !bytes.Equal(m.ExtRecord(idx, 1), []byte{5, 6, 7, 8}) {
		t.Error("preserve_data reset cleared record data")
	}

	m.ResetExtension(idx, 3, false)
	if !bytes.Equal(m.ExtHdr(idx), make([]byte, 4)) {
		t.Error("reset left header data")
	}
	if !bytes.Equal(m.ExtRecord(idx, 1), make([]byte, 4)) {
		t.Error("reset left record data")
	}
}

func TestAddKeyword(t *testing.T) {
	m := NewEmptyMap(BaseRecordSize)

	a, ok := m.AddKeyword("$Forwarded")
	if !ok || a != 0 {
		t.Fatalf("first keyword idx = %d,%v", a, ok)
	}
	b, ok := m.AddKeyword("$MDNSent")
	if !ok || b != 1 {
		t.Fatalf("second keyword idx = %d,%v", b, ok)
	}
	again, ok := m.AddKeyword("$Forwarded")
	if !ok || again != a {
		t.Error("re-adding a keyword must return its existing bit")
	}

	for i := len(m.Keywords); i < MaxKeywords; i++ {
		if _, ok := m.AddKeyword(string(rune('a' + i))); !ok {
			t.Fatalf("keyword %d rejected below the cap", i)
		}
	}
	if _, ok := m.AddKeyword("overflow"); ok {
		t.Error("keyword accepted past the bitmap capacity")
	}
}
