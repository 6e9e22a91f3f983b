package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	tm "time"

	"github.com/pixperk/objmutex/pkg/server/servertest"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/pixperk/objmutex/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

var start = tm.Date(2024, 3, 1, 12, 0, 0, 0, tm.UTC)

func newTestClient(t testing.TB, pageSize int) (*Client, *servertest.Backend, *time.FakeClock) {
	t.Helper()

	clock := time.NewFakeClock(start)
	backend := servertest.NewBackend(clock)
	h := servertest.Start(t, backend, pageSize)

	c, err := NewClient([]string{h.Target}, "farm", 5*tm.Second, h.DialOption())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, backend, clock
}

// TestClientObjectLifecycle tests put, get, head and delete through the client
func TestClientObjectLifecycle(t *testing.T) {
	c, _, clock := newTestClient(t, 0)
	ctx := context.Background()

	clock.Advance(3 * tm.Second)
	require.NoError(t, c.Put(ctx, "job.lock", []byte(`{"sessionId":"s1"}`)))

	obj, err := c.Get(ctx, "job.lock")
	require.NoError(t, err)
	assert.Equal(t, "job.lock", obj.Key)
	assert.Equal(t, []byte(`{"sessionId":"s1"}`), obj.Body)
	assert.True(t, start.Add(3*tm.Second).Equal(obj.LastModified))

	info, err := c.Head(ctx, "job.lock")
	require.NoError(t, err)
	assert.Equal(t, obj.ObjectInfo, info)

	require.NoError(t, c.Delete(ctx, "job.lock"))

	_, err = c.Get(ctx, "job.lock")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = c.Head(ctx, "job.lock")
	assert.ErrorIs(t, err, types.ErrNotFound)

	// delete is idempotent
	assert.NoError(t, c.Delete(ctx, "job.lock"))
}

// TestClientList tests that pages chain through NextToken
func TestClientList(t *testing.T) {
	c, _, _ := newTestClient(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(ctx, fmt.Sprintf("l.json.s%d", i), nil))
	}
	require.NoError(t, c.Put(ctx, "unrelated", nil))

	var keys []string
	token := ""
	for {
		page, err := c.List(ctx, "l.json.", token)
		require.NoError(t, err)
		for _, o := range page.Objects {
			keys = append(keys, o.Key)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}
	assert.Equal(t, []string{"l.json.s0", "l.json.s1", "l.json.s2", "l.json.s3", "l.json.s4"}, keys)
}

// TestClientNotLeader tests that follower rejections surface as ErrNotLeader
func TestClientNotLeader(t *testing.T) {
	c, backend, _ := newTestClient(t, 0)
	backend.Demote("10.0.0.9:7000")

	err := c.Put(context.Background(), "k", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotLeader)
	assert.Contains(t, err.Error(), "10.0.0.9:7000")
}

// TestClientFailover tests that an unreachable endpoint is skipped and the live one remembered
func TestClientFailover(t *testing.T) {
	backend := servertest.NewBackend(time.NewFakeClock(start))
	h := servertest.Start(t, backend, 0)

	dialer := grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
		if addr == "down" {
			return nil, errors.New("connection refused")
		}
		return h.Dial(ctx, addr)
	})

	c, err := NewClient([]string{"passthrough:///down", h.Target}, "farm", 2*tm.Second, dialer)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Put(context.Background(), "k", []byte("v")))
	assert.Equal(t, int32(1), c.current.Load())

	obj, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), obj.Body)
}

// TestClientStatusAndJoin tests the cluster management calls
func TestClientStatusAndJoin(t *testing.T) {
	c, backend, _ := newTestClient(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", nil))

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsLeader)
	assert.Equal(t, 1, st.Objects)

	require.NoError(t, c.Join(ctx, "n2", "127.0.0.1:7002"))
	assert.Equal(t, "127.0.0.1:7002", backend.Joined("n2"))
}

func TestNewClientNoEndpoints(t *testing.T) {
	_, err := NewClient(nil, "farm", tm.Second)
	assert.Error(t, err)
}

func TestParseEndpoints(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, ParseEndpoints(" a:1, ,b:2 "))
	assert.Nil(t, ParseEndpoints(""))
}
