package fsm

import (
	"io"
	"sync/atomic"

	"github.com/hashicorp/raft"
	"github.com/pixperk/objmutex/pkg/metrics"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/vmihailenco/msgpack/v5"
)

// adapter to bridge Raft FSM with our internal FSM
type RaftFSM struct {
	fsm          *FSM
	appliedIndex atomic.Uint64
}

func NewRaftFSM() *RaftFSM {
	return &RaftFSM{
		fsm: NewFSM(),
	}
}

// returns the wrapped state machine for reads
func (rf *RaftFSM) GetFSM() *FSM {
	return rf.fsm
}

// last log index applied
func (rf *RaftFSM) AppliedIndex() uint64 {
	return rf.appliedIndex.Load()
}

func (rf *RaftFSM) Apply(log *raft.Log) any {
	rf.appliedIndex.Store(log.Index)
	metrics.RaftAppliedIndex.Set(float64(log.Index))

	cmd, err := types.DecodeCommand(log.Data)
	if err != nil {
		return err
	}

	result, err := rf.fsm.Apply(cmd)
	if err != nil {
		return err
	}

	metrics.NodeObjects.Set(float64(rf.fsm.Stats().Objects))
	return result
}

// create a snapshot of the current FSM state
func (rf *RaftFSM) Snapshot() (raft.FSMSnapshot, error) {
	rf.fsm.mu.RLock()
	defer rf.fsm.mu.RUnlock()

	snapshot := &fsmSnapshot{
		Objects: make(map[string]*Entry, len(rf.fsm.objects)),
	}

	// bodies are never mutated in place, so copying the entry is enough
	for key, e := range rf.fsm.objects {
		entryCopy := *e
		snapshot.Objects[key] = &entryCopy
	}

	return snapshot, nil
}

// restores FSM state from snapshot
// when a node falls behind and needs to catch up or a new node joins
func (rf *RaftFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var snap fsmSnapshot
	if err := msgpack.NewDecoder(snapshot).Decode(&snap); err != nil {
		return err
	}
	if snap.Objects == nil {
		snap.Objects = make(map[string]*Entry)
	}

	rf.fsm.mu.Lock()
	rf.fsm.objects = snap.Objects
	rf.fsm.mu.Unlock()

	metrics.NodeObjects.Set(float64(len(snap.Objects)))
	return nil
}

// point-in-time snapshot of FSM state
type fsmSnapshot struct {
	Objects map[string]*Entry `msgpack:"objects"`
}

// persist snapshot to given sink
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := msgpack.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel() //fail snapshot on error
		return err
	}
	return sink.Close() //mark snapshot as complete
}

// nothing to release, the snapshot owns plain copies
func (s *fsmSnapshot) Release() {}
