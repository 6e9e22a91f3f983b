package raft

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	"github.com/pixperk/objmutex/pkg/fsm"
	"github.com/pixperk/objmutex/pkg/metrics"
	"github.com/pixperk/objmutex/pkg/storage"
	ltime "github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"go.uber.org/zap"
)

// wraps a raft inst with the object fsm and provides a store-like api
// reads and writes are served by the leader only
type Node struct {
	raft      *raft.Raft
	fsm       *fsm.FSM
	raftFSM   *fsm.RaftFSM
	storage   *storage.RaftStorage
	transport *raft.NetworkTransport
	clock     ltime.Clock
	log       *zap.Logger
	cfg       *Config
	stopCh    chan struct{}

	// set once this leader has applied every entry from earlier terms
	caughtUp atomic.Bool
}

type Config struct {
	NodeID        uuid.UUID     //unique ID for this node
	BindAddr      string        //net addr to bind Raft communication
	AdvertiseAddr string        //addr peers dial, defaults to the bound listener
	DataDir       string        //data directory for Raft storage
	Bootstrap     bool          //if this is the first node in the cluster
	ApplyTimeout  time.Duration //max time to commit one write
	Clock         ltime.Clock   //stamps object modification times on the leader
	Logger        *zap.Logger
}

func NewNode(cfg *Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = ltime.NewClock()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	raftLog := zap.NewStdLog(log.Named("raft")).Writer()

	raftFSM := fsm.NewRaftFSM()

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID.String())
	raftCfg.LogOutput = raftLog

	raftCfg.HeartbeatTimeout = 1000 * time.Millisecond
	raftCfg.ElectionTimeout = 1000 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond //time to wait before committing entries
	raftCfg.SnapshotThreshold = 8192              // snapshot after 8K log entries

	raftStorage, err := storage.Open(cfg.DataDir, 2, raftLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create stores: %w", err)
	}

	//tcp transport for inter-node communication
	//a nil advertise addr makes the transport report its listener, which allows port 0
	var advertise net.Addr
	if cfg.AdvertiseAddr != "" {
		advertise, err = net.ResolveTCPAddr("tcp", cfg.AdvertiseAddr)
		if err != nil {
			raftStorage.Close()
			return nil, fmt.Errorf("failed to resolve advertise addr: %w", err)
		}
	}

	transport, err := raft.NewTCPTransport(cfg.BindAddr, advertise, 3, 10*time.Second, raftLog)
	if err != nil {
		raftStorage.Close()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, raftFSM, raftStorage.LogStore, raftStorage.StableStore, raftStorage.SnapshotStore, transport)
	if err != nil {
		transport.Close()
		raftStorage.Close()
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	//bootstrap once, restarts recover the configuration from the log
	if cfg.Bootstrap {
		hasState, err := raftStorage.HasState()
		if err != nil {
			r.Shutdown()
			transport.Close()
			raftStorage.Close()
			return nil, fmt.Errorf("failed to inspect raft state: %w", err)
		}
		if !hasState {
			configuration := raft.Configuration{
				Servers: []raft.Server{
					{
						ID:      raftCfg.LocalID,
						Address: transport.LocalAddr(),
					},
				},
			}
			if err := r.BootstrapCluster(configuration).Error(); err != nil {
				log.Warn("bootstrap failed", zap.Error(err))
			}
		}
	}

	n := &Node{
		raft:      r,
		fsm:       raftFSM.GetFSM(),
		raftFSM:   raftFSM,
		storage:   raftStorage,
		transport: transport,
		clock:     cfg.Clock,
		log:       log,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
	go n.observeLeadership()

	return n, nil
}

// keeps the leader and peer gauges current
func (n *Node) observeLeadership() {
	for {
		select {
		case isLeader := <-n.raft.LeaderCh():
			n.caughtUp.Store(false)
			if isLeader {
				metrics.RaftIsLeader.Set(1)
				n.log.Info("became leader", zap.String("addr", n.Addr()))
			} else {
				metrics.RaftIsLeader.Set(0)
				n.log.Info("lost leadership")
			}
			metrics.RaftPeers.Set(float64(n.GetClusterSize()))
		case <-n.stopCh:
			return
		}
	}
}

// replicates a command and returns the fsm result
func (n *Node) apply(ctx context.Context, cmd types.Command) (any, error) {
	data, err := types.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}

	timeout := n.cfg.ApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	//replicate to cluster via Raft
	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, types.ErrNotLeader
		}
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	if err, ok := future.Response().(error); ok {
		return nil, err
	}
	return future.Response(), nil
}

// confirms leadership with a quorum before serving a read
// a new leader first waits on a barrier so its fsm reflects every committed write
func (n *Node) verifyLeader() error {
	if !n.IsLeader() {
		return types.ErrNotLeader
	}
	if !n.caughtUp.Load() {
		if err := n.raft.Barrier(n.cfg.ApplyTimeout).Error(); err != nil {
			return types.ErrNotLeader
		}
		n.caughtUp.Store(true)
	}
	if err := n.raft.VerifyLeader().Error(); err != nil {
		return types.ErrNotLeader
	}
	return nil
}

// writes an object stamped with the leader's clock
func (n *Node) Put(ctx context.Context, key string, body []byte) (types.ObjectInfo, error) {
	if !n.IsLeader() {
		return types.ObjectInfo{}, types.ErrNotLeader
	}

	result, err := n.apply(ctx, types.PutObjectCmd{
		Key:     key,
		Body:    body,
		ModTime: n.clock.Now().UTC(),
	})
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return result.(types.ObjectInfo), nil
}

func (n *Node) Delete(ctx context.Context, key string) error {
	if !n.IsLeader() {
		return types.ErrNotLeader
	}
	_, err := n.apply(ctx, types.DeleteObjectCmd{Key: key})
	return err
}

func (n *Node) Get(ctx context.Context, key string) (*types.Object, error) {
	if err := n.verifyLeader(); err != nil {
		return nil, err
	}
	obj, ok := n.fsm.Get(key)
	if !ok {
		return nil, types.ErrNotFound
	}
	return obj, nil
}

func (n *Node) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	obj, err := n.Get(ctx, key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return obj.ObjectInfo, nil
}

func (n *Node) List(ctx context.Context, prefix, token string, limit int) (types.ListPage, error) {
	if err := n.verifyLeader(); err != nil {
		return types.ListPage{}, err
	}
	return n.fsm.List(prefix, token, limit), nil
}

// adds a voter to the cluster; must run on the leader
func (n *Node) Join(nodeID, addr string) error {
	if !n.IsLeader() {
		return types.ErrNotLeader
	}

	configFuture := n.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}

	for _, srv := range configFuture.Configuration().Servers {
		if srv.ID == raft.ServerID(nodeID) && srv.Address == raft.ServerAddress(addr) {
			// already a member with the same address
			return nil
		}
		if srv.ID == raft.ServerID(nodeID) || srv.Address == raft.ServerAddress(addr) {
			if err := n.raft.RemoveServer(srv.ID, 0, 0).Error(); err != nil {
				return fmt.Errorf("failed to remove stale member %s: %w", srv.ID, err)
			}
		}
	}

	if err := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 0).Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	n.log.Info("node joined", zap.String("node_id", nodeID), zap.String("addr", addr))
	metrics.RaftPeers.Set(float64(n.GetClusterSize()))
	return nil
}

// returns true if this node is the leader
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// returns the leader's raft address
func (n *Node) GetLeader() string {
	leaderAddr, _ := n.raft.LeaderWithID()
	return string(leaderAddr)
}

func (n *Node) GetNodeID() uuid.UUID {
	return n.cfg.NodeID
}

func (n *Node) GetState() raft.RaftState {
	return n.raft.State()
}

// raft address peers use to reach this node
func (n *Node) Addr() string {
	return string(n.transport.LocalAddr())
}

func (n *Node) GetClusterSize() int {
	future := n.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return 0
	}
	return len(future.Configuration().Servers)
}

func (n *Node) AppliedIndex() uint64 {
	return n.raftFSM.AppliedIndex()
}

// blocks until a leader is elected
func (n *Node) WaitForLeader(timeout time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeoutCh := time.After(timeout)

	for {
		select {
		case <-timeoutCh:
			return fmt.Errorf("no leader elected within timeout")
		case <-ticker.C:
			if n.GetLeader() != "" {
				return nil
			}
		}
	}
}

// returns FSM statistics
func (n *Node) Stats() fsm.Stats {
	return n.fsm.Stats()
}

// gracefully shuts down the Raft node
func (n *Node) Shutdown() error {
	select {
	case <-n.stopCh:
		return nil
	default:
		close(n.stopCh)
	}

	err := n.raft.Shutdown().Error()
	if cerr := n.transport.Close(); err == nil {
		err = cerr
	}
	if cerr := n.storage.Close(); err == nil {
		err = cerr
	}
	return err
}

// point-in-time view of the node for status endpoints
type Status struct {
	NodeID       string
	State        string
	IsLeader     bool
	LeaderAddr   string
	ClusterSize  int
	Objects      int
	AppliedIndex uint64
}

func (n *Node) Status() Status {
	return Status{
		NodeID:       n.GetNodeID().String(),
		State:        n.GetState().String(),
		IsLeader:     n.IsLeader(),
		LeaderAddr:   n.GetLeader(),
		ClusterSize:  n.GetClusterSize(),
		Objects:      n.Stats().Objects,
		AppliedIndex: n.AppliedIndex(),
	}
}
