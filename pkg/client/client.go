package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// object store client for a replicated node cluster, scoped to one bucket
// calls go to the last node that answered; Unavailable moves on to the next endpoint
type Client struct {
	bucket  string
	timeout time.Duration
	conns   []*grpc.ClientConn
	stubs   []pb.ObjectStoreClient
	current atomic.Int32
}

// endpoints are grpc targets of cluster nodes, any member works
func NewClient(endpoints []string, bucket string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("no store endpoints configured")
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	c := &Client{bucket: bucket, timeout: timeout}
	for _, addr := range endpoints {
		conn, err := grpc.NewClient(addr, dialOpts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		c.conns = append(c.conns, conn)
		c.stubs = append(c.stubs, pb.NewObjectStoreClient(conn))
	}
	return c, nil
}

// splits a comma separated endpoint list
func ParseEndpoints(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// runs fn against each node in turn until one is not Unavailable
func (c *Client) call(ctx context.Context, fn func(context.Context, pb.ObjectStoreClient) error) error {
	start := int(c.current.Load())

	var lastErr error
	for i := range c.stubs {
		idx := (start + i) % len(c.stubs)

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		err := fn(callCtx, c.stubs[idx])
		cancel()

		if err == nil {
			c.current.Store(int32(idx))
			return nil
		}
		if status.Code(err) != codes.Unavailable || ctx.Err() != nil {
			return fromGRPCError(err)
		}
		lastErr = err
	}
	return fromGRPCError(lastErr)
}

func (c *Client) Get(ctx context.Context, key string) (*types.Object, error) {
	var resp *pb.GetResponse
	err := c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) (err error) {
		resp, err = stub.Get(ctx, &pb.GetRequest{Bucket: c.bucket, Key: key})
		return err
	})
	if err != nil {
		return nil, err
	}
	obj := resp.Object
	obj.LastModified = obj.LastModified.UTC()
	return &obj, nil
}

func (c *Client) Head(ctx context.Context, key string) (types.ObjectInfo, error) {
	var resp *pb.HeadResponse
	err := c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) (err error) {
		resp, err = stub.Head(ctx, &pb.HeadRequest{Bucket: c.bucket, Key: key})
		return err
	})
	if err != nil {
		return types.ObjectInfo{}, err
	}
	info := resp.Info
	info.LastModified = info.LastModified.UTC()
	return info, nil
}

func (c *Client) Put(ctx context.Context, key string, body []byte) error {
	return c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) error {
		_, err := stub.Put(ctx, &pb.PutRequest{Bucket: c.bucket, Key: key, Body: body})
		return err
	})
}

func (c *Client) Delete(ctx context.Context, key string) error {
	return c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) error {
		_, err := stub.Delete(ctx, &pb.DeleteRequest{Bucket: c.bucket, Key: key})
		return err
	})
}

func (c *Client) List(ctx context.Context, prefix, token string) (types.ListPage, error) {
	var resp *pb.ListResponse
	err := c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) (err error) {
		resp, err = stub.List(ctx, &pb.ListRequest{Bucket: c.bucket, Prefix: prefix, Token: token})
		return err
	})
	if err != nil {
		return types.ListPage{}, err
	}
	page := resp.Page
	for i := range page.Objects {
		page.Objects[i].LastModified = page.Objects[i].LastModified.UTC()
	}
	return page, nil
}

// status of whichever node answers first
func (c *Client) Status(ctx context.Context) (*pb.StatusResponse, error) {
	var resp *pb.StatusResponse
	err := c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) (err error) {
		resp, err = stub.Status(ctx, &pb.StatusRequest{})
		return err
	})
	return resp, err
}

// asks the cluster leader to add a voter
func (c *Client) Join(ctx context.Context, nodeID, raftAddr string) error {
	return c.call(ctx, func(ctx context.Context, stub pb.ObjectStoreClient) error {
		_, err := stub.Join(ctx, &pb.JoinRequest{NodeID: nodeID, RaftAddr: raftAddr})
		return err
	})
}

func (c *Client) Close() error {
	var err error
	for _, conn := range c.conns {
		if cerr := conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// maps gRPC status codes back to domain errors
func fromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return types.ErrNotFound
	case codes.Unavailable:
		if strings.HasPrefix(st.Message(), "not leader") {
			return fmt.Errorf("%w: %s", types.ErrNotLeader, st.Message())
		}
		return fmt.Errorf("store unavailable: %w", err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	default:
		return fmt.Errorf("rpc failed: %w", err)
	}
}
