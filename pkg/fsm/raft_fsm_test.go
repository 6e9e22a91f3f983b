package fsm

import (
	"bytes"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRaftFSMApply tests that Apply decodes the wire format
func TestRaftFSMApply(t *testing.T) {
	raftFSM := NewRaftFSM()

	data, err := types.EncodeCommand(types.PutObjectCmd{Key: "b/k", Body: []byte("v"), ModTime: t0})
	require.NoError(t, err)

	result := raftFSM.Apply(&raft.Log{Index: 7, Term: 1, Type: raft.LogCommand, Data: data})

	info, ok := result.(types.ObjectInfo)
	require.True(t, ok, "expected ObjectInfo, got %T", result)
	assert.Equal(t, "b/k", info.Key)
	assert.Equal(t, uint64(7), raftFSM.AppliedIndex())

	obj, exists := raftFSM.GetFSM().Get("b/k")
	require.True(t, exists)
	assert.Equal(t, []byte("v"), obj.Body)
}

// TestRaftFSMApplyMalformed tests that corrupt entries come back as errors
func TestRaftFSMApplyMalformed(t *testing.T) {
	raftFSM := NewRaftFSM()

	result := raftFSM.Apply(&raft.Log{Index: 1, Term: 1, Type: raft.LogCommand, Data: []byte{0xff}})

	err, ok := result.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, types.ErrMalformedEntry)
}

// TestRaftFSMSnapshotRestore tests restoring from snapshot
func TestRaftFSMSnapshotRestore(t *testing.T) {
	original := NewRaftFSM()

	_, err := original.fsm.Apply(types.PutObjectCmd{Key: "b/lock.json", Body: []byte(`{"sessionId":"s1"}`), ModTime: t0})
	require.NoError(t, err)
	_, err = original.fsm.Apply(types.PutObjectCmd{Key: "b/lock.json.s1", ModTime: t0})
	require.NoError(t, err)

	snapshot, err := original.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snapshot.(*fsmSnapshot).Objects, 2)

	var buf bytes.Buffer
	mockSink := &mockSnapshotSink{buffer: &buf}
	require.NoError(t, snapshot.Persist(mockSink))

	restored := NewRaftFSM()
	require.NoError(t, restored.Restore(io.NopCloser(&buf)))

	obj, exists := restored.fsm.Get("b/lock.json")
	require.True(t, exists)
	assert.Equal(t, []byte(`{"sessionId":"s1"}`), obj.Body)
	assert.True(t, t0.Equal(obj.LastModified))
	assert.Equal(t, 2, restored.fsm.Stats().Objects)
}

// mockSnapshotSink implements raft.SnapshotSink for testing
type mockSnapshotSink struct {
	buffer *bytes.Buffer
}

func (m *mockSnapshotSink) Write(p []byte) (n int, err error) {
	return m.buffer.Write(p)
}

func (m *mockSnapshotSink) Close() error {
	return nil
}

func (m *mockSnapshotSink) ID() string {
	return "mock-snapshot"
}

func (m *mockSnapshotSink) Cancel() error {
	return nil
}
