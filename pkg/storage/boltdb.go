package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

const (
	raftDBFile      = "raft.db"
	snapshotDirName = "snapshots"
	logCacheSize    = 512
)

// durable raft state of one store node under dataDir
// the bolt file backs both the log and the stable store, snapshots are files
type RaftStorage struct {
	LogStore      raft.LogStore
	StableStore   raft.StableStore
	SnapshotStore raft.SnapshotStore

	bolt *raftboltdb.BoltStore
}

// opens or creates the node's storage, keeping retain snapshots
func Open(dataDir string, retain int, logOutput io.Writer) (*RaftStorage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if retain <= 0 {
		retain = 2
	}
	if logOutput == nil {
		logOutput = io.Discard
	}

	boltDB, err := raftboltdb.New(raftboltdb.Options{
		Path: filepath.Join(dataDir, raftDBFile),
	})
	if err != nil {
		return nil, fmt.Errorf("open raft log: %w", err)
	}

	// recent entries are read back on every replication round
	cached, err := raft.NewLogCache(logCacheSize, boltDB)
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("create log cache: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(filepath.Join(dataDir, snapshotDirName), retain, logOutput)
	if err != nil {
		boltDB.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	return &RaftStorage{
		LogStore:      cached,
		StableStore:   boltDB,
		SnapshotStore: snapshots,
		bolt:          boltDB,
	}, nil
}

// reports whether the node already belongs to a cluster
// bootstrapping again on restart would fail, so callers skip it when true
func (s *RaftStorage) HasState() (bool, error) {
	return raft.HasExistingState(s.LogStore, s.StableStore, s.SnapshotStore)
}

func (s *RaftStorage) Close() error {
	return s.bolt.Close()
}
