package mailindex

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestIndex(t *testing.T) (string, *Map) {
	t.Helper()

	m := NewEmptyMap(BaseRecordSize)
	m.Rec.Append(10, FlagSeen, nil)
	m.Rec.Append(11, 0, nil)
	m.Rec.Append(12, FlagDeleted, nil)
	m.Header.MessagesCount = 3
	m.Header.NextUID = 13
	m.Header.SeenMessagesCount = 1
	m.Header.DeletedMessagesCount = 1
	m.Header.FirstDeletedUIDLowwater = 12

	m.RegisterExtension("cache", 7, 8, 4, 4)
	copy(m.ExtRecord(0, 2), []byte{0xde, 0xad, 0xbe, 0xef})
	m.AddKeyword("$Forwarded")

	path := filepath.Join(t.TempDir(), "mailbox.idx")
	if err := WriteMapFile(path, m); err != nil {
		t.Fatalf("WriteMapFile: %v", err)
	}
	return path, m
}

func TestIndexFile_Roundtrip(t *testing.T) {
	path, orig := writeTestIndex(t)

	f, err := OpenIndexFile(path)
	if err != nil {
		t.Fatalf("OpenIndexFile: %v", err)
	}
	defer f.Close()

	got, err := f.ReadMap(false)
	if err != nil {
		t.Fatalf("ReadMap: %v", err)
	}

	if got.Header != orig.Header {
		t.Errorf("header mismatch:\n got %+v\nwant %+v", got.Header, orig.Header)
	}
	if got.Rec.RecordsCount != 3 || got.Rec.UIDAt(3) != 12 {
		t.Errorf("records lost: count=%d", got.Rec.RecordsCount)
	}
	if got.Rec.FlagsAt(1) != FlagSeen {
		t.Error("flags lost")
	}
	if len(got.Extensions) != 1 || got.Extensions[0].Name != "cache" ||
		got.Extensions[0].ResetID != 7 {
		t.Errorf("extensions lost: %+v", got.Extensions)
	}
	if ext := got.ExtRecord(0, 2); ext[0] != 0xde || ext[3] != 0xef {
		t.Error("extension record data lost")
	}
	if len(got.Keywords) != 1 || got.Keywords[0] != "$Forwarded" {
		t.Errorf("keywords lost: %v", got.Keywords)
	}
	if got.Rec.LastAppendedUID != 12 {
		t.Errorf("last_appended_uid = %d, want 12", got.Rec.LastAppendedUID)
	}
}

func TestIndexFile_MmapResidence(t *testing.T) {
	path, _ := writeTestIndex(t)

	f, err := OpenIndexFile(path)
	if err != nil {
		t.Fatalf("OpenIndexFile: %v", err)
	}
	defer f.Close()

	m, err := f.ReadMap(true)
	if err != nil {
		t.Fatalf("ReadMap: %v", err)
	}
	if m.Residence != ResidenceMmap {
		t.Fatal("residence should be mmap")
	}

	// Materializing must detach the buffer from the mapping so appends
	// can't touch the file.
	private := MoveToPrivateMemory(m)
	private.Rec.Append(20, 0, nil)
	if private.Rec.RecordsCount != 4 {
		t.Error("append after materialization failed")
	}
}

func TestIndexFile_WriteBackHeader(t *testing.T) {
	path, _ := writeTestIndex(t)

	f, err := OpenIndexFile(path)
	if err != nil {
		t.Fatalf("OpenIndexFile: %v", err)
	}
	m, err := f.ReadMap(false)
	if err != nil {
		t.Fatalf("ReadMap: %v", err)
	}

	m.Header.SeenMessagesCount = 2
	m.Header.Encode(m.HdrCopyBuf)
	if err := f.WriteBackHeader(m); err != nil {
		t.Fatalf("WriteBackHeader: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := OpenIndexFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()
	got, err := f2.ReadMap(false)
	if err != nil {
		t.Fatalf("ReadMap: %v", err)
	}
	if got.Header.SeenMessagesCount != 2 {
		t.Errorf("seen = %d after write-back, want 2", got.Header.SeenMessagesCount)
	}
}

func TestOpenIndexFile_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.idx")
	if err := os.WriteFile(path, bytes.Repeat([]byte("junk"), 32), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenIndexFile(path); err == nil {
		t.Error("garbage file accepted")
	}
}
