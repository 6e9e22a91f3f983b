package server

import (
	"context"
	"strings"
	"time"

	pb "github.com/pixperk/objmutex/api/v1"
	"github.com/pixperk/objmutex/pkg/raft"
	"github.com/pixperk/objmutex/pkg/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// the replicated state the server exposes; *raft.Node implements it
type Backend interface {
	Get(ctx context.Context, key string) (*types.Object, error)
	Head(ctx context.Context, key string) (types.ObjectInfo, error)
	Put(ctx context.Context, key string, body []byte) (types.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, token string, limit int) (types.ListPage, error)
	Join(nodeID, addr string) error
	IsLeader() bool
	GetLeader() string
	Status() raft.Status
}

type Server struct {
	pb.UnimplementedObjectStoreServer
	node     Backend
	pageSize int
}

// wraps the raft node into a gRPC server
// buckets are namespaces inside the node, objects are stored as "<bucket>/<key>"
func NewServer(node Backend, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Server{
		node:     node,
		pageSize: pageSize,
	}
}

func (s *Server) Get(ctx context.Context, req *pb.GetRequest) (*pb.GetResponse, error) {
	key, err := objectKey(req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	obj, err := s.node.Get(ctx, key)
	if err != nil {
		return nil, toGRPCError(err)
	}
	obj.Key = req.Key
	return &pb.GetResponse{Object: *obj}, nil
}

func (s *Server) Head(ctx context.Context, req *pb.HeadRequest) (*pb.HeadResponse, error) {
	key, err := objectKey(req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	info, err := s.node.Head(ctx, key)
	if err != nil {
		return nil, toGRPCError(err)
	}
	info.Key = req.Key
	return &pb.HeadResponse{Info: info}, nil
}

func (s *Server) Put(ctx context.Context, req *pb.PutRequest) (*pb.PutResponse, error) {
	key, err := objectKey(req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	info, err := s.node.Put(ctx, key, req.Body)
	if err != nil {
		return nil, toGRPCError(err)
	}
	info.Key = req.Key
	return &pb.PutResponse{Info: info}, nil
}

func (s *Server) Delete(ctx context.Context, req *pb.DeleteRequest) (*pb.DeleteResponse, error) {
	key, err := objectKey(req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	if err := s.node.Delete(ctx, key); err != nil {
		return nil, toGRPCError(err)
	}
	return &pb.DeleteResponse{}, nil
}

func (s *Server) List(ctx context.Context, req *pb.ListRequest) (*pb.ListResponse, error) {
	if err := validBucket(req.Bucket); err != nil {
		return nil, err
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	ns := req.Bucket + "/"
	token := ""
	if req.Token != "" {
		token = ns + req.Token
	}

	page, err := s.node.List(ctx, ns+req.Prefix, token, s.pageSize)
	if err != nil {
		return nil, toGRPCError(err)
	}

	for i := range page.Objects {
		page.Objects[i].Key = strings.TrimPrefix(page.Objects[i].Key, ns)
	}
	page.NextToken = strings.TrimPrefix(page.NextToken, ns)
	return &pb.ListResponse{Page: page}, nil
}

func (s *Server) Status(ctx context.Context, req *pb.StatusRequest) (*pb.StatusResponse, error) {
	st := s.node.Status()
	return &pb.StatusResponse{
		NodeID:       st.NodeID,
		State:        st.State,
		IsLeader:     st.IsLeader,
		LeaderAddr:   st.LeaderAddr,
		ClusterSize:  st.ClusterSize,
		Objects:      st.Objects,
		AppliedIndex: st.AppliedIndex,
	}, nil
}

func (s *Server) Join(ctx context.Context, req *pb.JoinRequest) (*pb.JoinResponse, error) {
	if req.NodeID == "" || req.RaftAddr == "" {
		return nil, status.Error(codes.InvalidArgument, "node_id and raft_addr are required")
	}
	if !s.node.IsLeader() {
		return nil, notLeaderError(s.node.GetLeader())
	}

	if err := s.node.Join(req.NodeID, req.RaftAddr); err != nil {
		return nil, toGRPCError(err)
	}
	return &pb.JoinResponse{}, nil
}

func objectKey(bucket, key string) (string, error) {
	if err := validBucket(bucket); err != nil {
		return "", err
	}
	if key == "" {
		return "", status.Error(codes.InvalidArgument, "key required")
	}
	return bucket + "/" + key, nil
}

func validBucket(bucket string) error {
	if bucket == "" || strings.Contains(bucket, "/") {
		return status.Error(codes.InvalidArgument, "bucket must be non-empty and contain no '/'")
	}
	return nil
}

// logs every call with its latency and status code
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil && status.Code(err) != codes.NotFound {
			log.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("rpc", fields...)
		}
		return resp, err
	}
}
