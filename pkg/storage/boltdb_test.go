package storage

import (
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	stores, err := Open(t.TempDir(), 2, nil)
	require.NoError(t, err)
	defer stores.Close()

	assert.NotNil(t, stores.LogStore)
	assert.NotNil(t, stores.StableStore)
	assert.NotNil(t, stores.SnapshotStore)

	has, err := stores.HasState()
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLogStore(t *testing.T) {
	stores, err := Open(t.TempDir(), 2, nil)
	require.NoError(t, err)
	defer stores.Close()

	log := &raft.Log{
		Index: 1,
		Term:  1,
		Type:  raft.LogCommand,
		Data:  []byte("put b/k"),
	}
	require.NoError(t, stores.LogStore.StoreLog(log))

	retrieved := &raft.Log{}
	require.NoError(t, stores.LogStore.GetLog(1, retrieved))
	assert.Equal(t, uint64(1), retrieved.Index)
	assert.Equal(t, []byte("put b/k"), retrieved.Data)

	has, err := stores.HasState()
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSnapshotStore(t *testing.T) {
	stores, err := Open(t.TempDir(), 2, nil)
	require.NoError(t, err)
	defer stores.Close()

	sink, err := stores.SnapshotStore.Create(
		raft.SnapshotVersionMax,
		100, // last included index
		1,   // last included term
		raft.Configuration{},
		1,   // configuration index
		nil, // transport
	)
	require.NoError(t, err)

	_, err = sink.Write([]byte{0x81})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	snapshots, err := stores.SnapshotStore.List()
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, uint64(100), snapshots[0].Index)
}

func TestStoragePersistence(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir, 2, nil)
	require.NoError(t, err)
	require.NoError(t, first.StableStore.SetUint64([]byte("CurrentTerm"), 42))
	require.NoError(t, first.Close())

	second, err := Open(dir, 2, nil)
	require.NoError(t, err)
	defer second.Close()

	term, err := second.StableStore.GetUint64([]byte("CurrentTerm"))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), term)

	// a stored term counts as existing state
	has, err := second.HasState()
	require.NoError(t, err)
	assert.True(t, has)
}
