package raft

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, dir string, bootstrap bool) *Node {
	t.Helper()

	node, err := NewNode(&Config{
		NodeID:    uuid.New(),
		BindAddr:  "127.0.0.1:0", // 0 = pick random available port
		DataDir:   dir,
		Bootstrap: bootstrap,
	})
	require.NoError(t, err, "failed to create node")
	return node
}

// reserves a port the transport can bind again after a restart
func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// TestSingleNodeSmoke tests basic object operations on a single node
func TestSingleNodeSmoke(t *testing.T) {
	ctx := context.Background()
	node := newTestNode(t, t.TempDir(), true)
	defer node.Shutdown()

	require.NoError(t, node.WaitForLeader(5*time.Second), "no leader elected")
	require.Eventually(t, node.IsLeader, 5*time.Second, 50*time.Millisecond, "single node should be leader")

	before := time.Now().UTC()
	info, err := node.Put(ctx, "bucket/res.lock.json", []byte(`{"sessionId":"s1"}`))
	require.NoError(t, err)
	assert.Equal(t, "bucket/res.lock.json", info.Key)
	assert.False(t, info.LastModified.Before(before.Add(-time.Second)))

	obj, err := node.Get(ctx, "bucket/res.lock.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"sessionId":"s1"}`), obj.Body)

	_, err = node.Put(ctx, "bucket/res.lock.json.s1", nil)
	require.NoError(t, err)

	page, err := node.List(ctx, "bucket/res.lock.json.", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Objects, 1)
	assert.Equal(t, "bucket/res.lock.json.s1", page.Objects[0].Key)

	require.NoError(t, node.Delete(ctx, "bucket/res.lock.json"))
	require.NoError(t, node.Delete(ctx, "bucket/res.lock.json"), "delete must be idempotent")

	_, err = node.Get(ctx, "bucket/res.lock.json")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 1, node.Stats().Objects)
	assert.NotZero(t, node.AppliedIndex())
}

func TestStatePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := &Config{
		NodeID:    uuid.New(),
		BindAddr:  freeAddr(t),
		DataDir:   dir,
		Bootstrap: true,
	}

	node1, err := NewNode(cfg)
	require.NoError(t, err)
	require.NoError(t, node1.WaitForLeader(5*time.Second))
	require.Eventually(t, node1.IsLeader, 5*time.Second, 50*time.Millisecond)

	info, err := node1.Put(ctx, "bucket/k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, node1.Shutdown(), "failed to shutdown node1")

	// bootstrap again is skipped because state exists
	node2, err := NewNode(cfg)
	require.NoError(t, err, "failed to recreate node")
	defer node2.Shutdown()

	require.NoError(t, node2.WaitForLeader(5*time.Second))
	require.Eventually(t, node2.IsLeader, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		obj, err := node2.Get(ctx, "bucket/k")
		return err == nil && string(obj.Body) == "v" && obj.LastModified.Equal(info.LastModified)
	}, 5*time.Second, 50*time.Millisecond, "object should survive restart with its timestamp")
}

func TestMultiNodeCluster(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	nodes := make([]*Node, 3)
	nodes[0] = newTestNode(t, filepath.Join(root, "node0"), true)
	defer nodes[0].Shutdown()

	require.NoError(t, nodes[0].WaitForLeader(5*time.Second), "no leader elected in cluster")
	require.Eventually(t, nodes[0].IsLeader, 5*time.Second, 50*time.Millisecond, "node 0 should be leader")

	for i := 1; i < 3; i++ {
		nodes[i] = newTestNode(t, filepath.Join(root, fmt.Sprintf("node%d", i)), false)
		defer nodes[i].Shutdown()

		err := nodes[0].Join(nodes[i].GetNodeID().String(), nodes[i].Addr())
		require.NoError(t, err, fmt.Sprintf("failed to add node %d as voter", i))
	}

	// joining twice is a no-op
	require.NoError(t, nodes[0].Join(nodes[1].GetNodeID().String(), nodes[1].Addr()))
	assert.Equal(t, 3, nodes[0].GetClusterSize())

	_, err := nodes[0].Put(ctx, "bucket/lock.json", []byte("owner"))
	require.NoError(t, err)

	// every replica applies the write
	for i, node := range nodes {
		require.Eventually(t, func() bool {
			obj, ok := node.fsm.Get("bucket/lock.json")
			return ok && string(obj.Body) == "owner"
		}, 5*time.Second, 50*time.Millisecond, fmt.Sprintf("node %d should have the object", i))
	}

	// followers refuse to serve
	_, err = nodes[1].Get(ctx, "bucket/lock.json")
	assert.ErrorIs(t, err, types.ErrNotLeader)
	_, err = nodes[2].Put(ctx, "bucket/other", nil)
	assert.ErrorIs(t, err, types.ErrNotLeader)
	assert.Equal(t, nodes[0].Addr(), nodes[1].GetLeader())
}

func TestLeaderElection(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	nodes := make([]*Node, 3)
	nodes[0] = newTestNode(t, filepath.Join(root, "node0"), true)
	require.NoError(t, nodes[0].WaitForLeader(5*time.Second))
	require.Eventually(t, nodes[0].IsLeader, 5*time.Second, 50*time.Millisecond)

	for i := 1; i < 3; i++ {
		nodes[i] = newTestNode(t, filepath.Join(root, fmt.Sprintf("node%d", i)), false)
		defer nodes[i].Shutdown()
		require.NoError(t, nodes[0].Join(nodes[i].GetNodeID().String(), nodes[i].Addr()))
	}

	_, err := nodes[0].Put(ctx, "bucket/k", []byte("before failover"))
	require.NoError(t, err)

	require.NoError(t, nodes[0].Shutdown(), "failed to shutdown leader node 0")

	var newLeader *Node
	require.Eventually(t, func() bool {
		for i := 1; i < 3; i++ {
			if nodes[i].IsLeader() {
				newLeader = nodes[i]
				return true
			}
		}
		return false
	}, 10*time.Second, 100*time.Millisecond, "a new leader should be elected")

	obj, err := newLeader.Get(ctx, "bucket/k")
	require.NoError(t, err)
	assert.Equal(t, []byte("before failover"), obj.Body)

	_, err = newLeader.Put(ctx, "bucket/k", []byte("after failover"))
	require.NoError(t, err)
}
