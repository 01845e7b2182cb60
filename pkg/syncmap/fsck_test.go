package syncmap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maildrop/indexsync/pkg/mailindex"
)

func brokenMap() *mailindex.Map {
	m := mailindex.NewEmptyMap(mailindex.BaseRecordSize)
	m.Rec.Append(1, mailindex.FlagSeen, nil)
	m.Rec.Append(5, mailindex.FlagDeleted|mailindex.FlagDirty, nil)
	m.Rec.Append(9, 0, nil)
	m.Header.MessagesCount = 3
	m.Header.NextUID = 10
	return m
}

func TestFsckMap_RebuildsCounters(t *testing.T) {
	m := brokenMap()
	m.Header.SeenMessagesCount = 7
	m.Header.DeletedMessagesCount = 9
	m.Header.FirstUnseenUIDLowwater = 1
	m.Header.FirstDeletedUIDLowwater = 1

	FsckMap(m)

	assert.Equal(t, uint32(1), m.Header.SeenMessagesCount)
	assert.Equal(t, uint32(1), m.Header.DeletedMessagesCount)
	assert.Equal(t, uint32(5), m.Header.FirstUnseenUIDLowwater)
	assert.Equal(t, uint32(5), m.Header.FirstDeletedUIDLowwater)
	assert.NotZero(t, m.Header.Flags&mailindex.HeaderFlagFsckd)
	assert.NotZero(t, m.Header.Flags&mailindex.HeaderFlagHaveDirty)
	assert.NoError(t, MapCheck(m))
}

func TestFsckMap_FixesNextUID(t *testing.T) {
	m := brokenMap()
	m.Header.NextUID = 3 // below the last record's uid

	FsckMap(m)

	assert.Equal(t, uint32(10), m.Header.NextUID)
}

func TestFsckMap_TruncatesOnBrokenOrder(t *testing.T) {
	m := mailindex.NewEmptyMap(mailindex.BaseRecordSize)
	m.Rec.Append(5, 0, nil)
	m.Rec.Append(3, 0, nil) // out of order
	m.Header.MessagesCount = 2
	m.Header.NextUID = 6

	FsckMap(m)

	assert.Equal(t, uint32(1), m.Header.MessagesCount)
	assert.NoError(t, CheckHeader(m))
}

func TestFsckMap_ClampsMessagesCount(t *testing.T) {
	m := mailindex.NewEmptyMap(mailindex.BaseRecordSize)
	m.Rec.Append(1, 0, nil)
	m.Header.MessagesCount = 50
	m.Header.NextUID = 2

	FsckMap(m)

	assert.Equal(t, uint32(1), m.Header.MessagesCount)
}

func TestMapCheck_FindsCounterDrift(t *testing.T) {
	m := brokenMap()
	m.Header.SeenMessagesCount = 2
	assert.Error(t, MapCheck(m))
}

func TestCheckHeader(t *testing.T) {
	m := brokenMap()
	m.Header.SeenMessagesCount = 1
	m.Header.DeletedMessagesCount = 1
	assert.NoError(t, CheckHeader(m))

	m.Header.SeenMessagesCount = 4
	assert.Error(t, CheckHeader(m))
}
