package server_test

import (
	"context"
	"testing"
	tm "time"

	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/server/servertest"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var start = tm.Date(2024, 3, 1, 12, 0, 0, 0, tm.UTC)

func setup(t *testing.T, pageSize int) (*servertest.Backend, *time.FakeClock, pb.ObjectStoreClient) {
	clock := time.NewFakeClock(start)
	backend := servertest.NewBackend(clock)
	return backend, clock, servertest.Start(t, backend, pageSize).Stub(t)
}

// TestPutGetRoundTrip tests that objects come back with their body and server timestamp
func TestPutGetRoundTrip(t *testing.T) {
	_, clock, stub := setup(t, 0)
	ctx := context.Background()

	clock.Advance(5 * tm.Second)
	put, err := stub.Put(ctx, &pb.PutRequest{Bucket: "farm", Key: "jobs/a.lock", Body: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, "jobs/a.lock", put.Info.Key)
	assert.True(t, start.Add(5*tm.Second).Equal(put.Info.LastModified))

	got, err := stub.Get(ctx, &pb.GetRequest{Bucket: "farm", Key: "jobs/a.lock"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got.Object.Body)
	assert.Equal(t, "jobs/a.lock", got.Object.Key)
	assert.Equal(t, int64(5), got.Object.Size)

	head, err := stub.Head(ctx, &pb.HeadRequest{Bucket: "farm", Key: "jobs/a.lock"})
	require.NoError(t, err)
	assert.True(t, put.Info.LastModified.Equal(head.Info.LastModified))
}

// TestMissingObject tests that absent keys map to NotFound
func TestMissingObject(t *testing.T) {
	_, _, stub := setup(t, 0)
	ctx := context.Background()

	_, err := stub.Get(ctx, &pb.GetRequest{Bucket: "farm", Key: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = stub.Head(ctx, &pb.HeadRequest{Bucket: "farm", Key: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	// deleting a missing key succeeds
	_, err = stub.Delete(ctx, &pb.DeleteRequest{Bucket: "farm", Key: "nope"})
	assert.NoError(t, err)
}

// TestBucketIsolation tests that buckets are separate namespaces
func TestBucketIsolation(t *testing.T) {
	backend, _, stub := setup(t, 0)
	ctx := context.Background()

	_, err := stub.Put(ctx, &pb.PutRequest{Bucket: "a", Key: "k", Body: []byte("1")})
	require.NoError(t, err)
	_, err = stub.Put(ctx, &pb.PutRequest{Bucket: "ab", Key: "k", Body: []byte("2")})
	require.NoError(t, err)

	_, ok := backend.FSM.Get("a/k")
	assert.True(t, ok)

	resp, err := stub.List(ctx, &pb.ListRequest{Bucket: "a"})
	require.NoError(t, err)
	require.Len(t, resp.Page.Objects, 1)
	assert.Equal(t, "k", resp.Page.Objects[0].Key)
}

// TestListPaging tests that tokens are bucket relative and pages resume after them
func TestListPaging(t *testing.T) {
	_, _, stub := setup(t, 2)
	ctx := context.Background()

	for _, k := range []string{"l.json.s3", "l.json.s1", "l.json.s2", "other"} {
		_, err := stub.Put(ctx, &pb.PutRequest{Bucket: "farm", Key: k})
		require.NoError(t, err)
	}

	first, err := stub.List(ctx, &pb.ListRequest{Bucket: "farm", Prefix: "l.json."})
	require.NoError(t, err)
	require.Len(t, first.Page.Objects, 2)
	assert.Equal(t, "l.json.s1", first.Page.Objects[0].Key)
	assert.Equal(t, "l.json.s2", first.Page.NextToken)

	second, err := stub.List(ctx, &pb.ListRequest{Bucket: "farm", Prefix: "l.json.", Token: first.Page.NextToken})
	require.NoError(t, err)
	require.Len(t, second.Page.Objects, 1)
	assert.Equal(t, "l.json.s3", second.Page.Objects[0].Key)
	assert.Empty(t, second.Page.NextToken)
}

// TestInvalidArguments tests request validation
func TestInvalidArguments(t *testing.T) {
	_, _, stub := setup(t, 0)
	ctx := context.Background()

	_, err := stub.Get(ctx, &pb.GetRequest{Bucket: "", Key: "k"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = stub.Put(ctx, &pb.PutRequest{Bucket: "a/b", Key: "k"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = stub.Delete(ctx, &pb.DeleteRequest{Bucket: "a", Key: ""})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = stub.Join(ctx, &pb.JoinRequest{NodeID: "n2"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestFollowerRejects tests that followers answer Unavailable with the leader address
func TestFollowerRejects(t *testing.T) {
	backend, _, stub := setup(t, 0)
	ctx := context.Background()
	backend.Demote("10.0.0.1:7000")

	_, err := stub.Put(ctx, &pb.PutRequest{Bucket: "farm", Key: "k"})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "10.0.0.1:7000")

	_, err = stub.List(ctx, &pb.ListRequest{Bucket: "farm"})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	// status is served by any node
	st, err := stub.Status(ctx, &pb.StatusRequest{})
	require.NoError(t, err)
	assert.False(t, st.IsLeader)
	assert.Equal(t, "10.0.0.1:7000", st.LeaderAddr)
}

// TestJoin tests that the leader forwards join requests to the node
func TestJoin(t *testing.T) {
	backend, _, stub := setup(t, 0)

	_, err := stub.Join(context.Background(), &pb.JoinRequest{NodeID: "n2", RaftAddr: "127.0.0.1:7001"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", backend.Joined("n2"))
}
