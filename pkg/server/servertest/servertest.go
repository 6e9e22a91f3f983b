// Package servertest runs an ObjectStore gRPC server in memory for tests.
package servertest

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/fsm"
	"github.com/pixperk/objmutex/pkg/raft"
	"github.com/pixperk/objmutex/pkg/server"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// single-replica Backend that applies commands straight to an FSM
type Backend struct {
	FSM      *fsm.FSM
	Clock    time.Clock
	follower atomic.Bool
	leader   string

	mu     sync.Mutex
	joined map[string]string
}

func NewBackend(clock time.Clock) *Backend {
	return &Backend{FSM: fsm.NewFSM(), Clock: clock, joined: make(map[string]string)}
}

// makes every call fail as a follower pointing at leaderAddr
func (b *Backend) Demote(leaderAddr string) {
	b.leader = leaderAddr
	b.follower.Store(true)
}

func (b *Backend) Get(ctx context.Context, key string) (*types.Object, error) {
	obj, ok := b.FSM.Get(key)
	if !ok {
		return nil, types.ErrNotFound
	}
	return obj, nil
}

func (b *Backend) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	obj, err := b.Get(ctx, key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return obj.ObjectInfo, nil
}

func (b *Backend) Put(ctx context.Context, key string, body []byte) (types.ObjectInfo, error) {
	res, err := b.FSM.Apply(types.PutObjectCmd{Key: key, Body: body, ModTime: b.Clock.Now().UTC()})
	if err != nil {
		return types.ObjectInfo{}, err
	}
	return res.(types.ObjectInfo), nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.FSM.Apply(types.DeleteObjectCmd{Key: key})
	return err
}

func (b *Backend) List(ctx context.Context, prefix, token string, limit int) (types.ListPage, error) {
	return b.FSM.List(prefix, token, limit), nil
}

func (b *Backend) Join(nodeID, addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[nodeID] = addr
	return nil
}

// raft address registered for nodeID by Join
func (b *Backend) Joined(nodeID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joined[nodeID]
}

func (b *Backend) IsLeader() bool { return !b.follower.Load() }

func (b *Backend) GetLeader() string { return b.leader }

func (b *Backend) Status() raft.Status {
	state := "Leader"
	if b.follower.Load() {
		state = "Follower"
	}
	return raft.Status{
		NodeID:      "test-node",
		State:       state,
		IsLeader:    b.IsLeader(),
		LeaderAddr:  b.leader,
		ClusterSize: 1,
		Objects:     b.FSM.Stats().Objects,
	}
}

// in-memory server bound to a bufconn listener
type Harness struct {
	Target string
	lis    *bufconn.Listener
}

// serves backend until the test ends
func Start(t testing.TB, backend server.Backend, pageSize int) *Harness {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterObjectStoreServer(srv, server.NewServer(backend, pageSize))

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return &Harness{Target: "passthrough:///bufnet", lis: lis}
}

// dials the listener whatever the address
func (h *Harness) Dial(ctx context.Context, _ string) (net.Conn, error) {
	return h.lis.DialContext(ctx)
}

func (h *Harness) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(h.Dial)
}

// raw stub for calling the service directly
func (h *Harness) Stub(t testing.TB) pb.ObjectStoreClient {
	t.Helper()

	conn, err := grpc.NewClient(h.Target, h.DialOption(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial %s: %v", h.Target, err)
	}
	t.Cleanup(func() { conn.Close() })
	return pb.NewObjectStoreClient(conn)
}
