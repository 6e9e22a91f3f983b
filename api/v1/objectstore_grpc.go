package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "objmutex.v1.ObjectStore"

const (
	ObjectStore_Get_FullMethodName    = "/" + ServiceName + "/Get"
	ObjectStore_Head_FullMethodName   = "/" + ServiceName + "/Head"
	ObjectStore_Put_FullMethodName    = "/" + ServiceName + "/Put"
	ObjectStore_Delete_FullMethodName = "/" + ServiceName + "/Delete"
	ObjectStore_List_FullMethodName   = "/" + ServiceName + "/List"
	ObjectStore_Status_FullMethodName = "/" + ServiceName + "/Status"
	ObjectStore_Join_FullMethodName   = "/" + ServiceName + "/Join"
)

type ObjectStoreClient interface {
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	Head(ctx context.Context, in *HeadRequest, opts ...grpc.CallOption) (*HeadResponse, error)
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error)
	List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error)
}

type objectStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewObjectStoreClient(cc grpc.ClientConnInterface) ObjectStoreClient {
	return &objectStoreClient{cc}
}

func (c *objectStoreClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *objectStoreClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, ObjectStore_Get_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Head(ctx context.Context, in *HeadRequest, opts ...grpc.CallOption) (*HeadResponse, error) {
	out := new(HeadResponse)
	if err := c.invoke(ctx, ObjectStore_Head_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*PutResponse, error) {
	out := new(PutResponse)
	if err := c.invoke(ctx, ObjectStore_Put_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	if err := c.invoke(ctx, ObjectStore_Delete_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) List(ctx context.Context, in *ListRequest, opts ...grpc.CallOption) (*ListResponse, error) {
	out := new(ListResponse)
	if err := c.invoke(ctx, ObjectStore_List_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.invoke(ctx, ObjectStore_Status_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *objectStoreClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinResponse, error) {
	out := new(JoinResponse)
	if err := c.invoke(ctx, ObjectStore_Join_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

type ObjectStoreServer interface {
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Head(context.Context, *HeadRequest) (*HeadResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
}

// embed to stay forward compatible when methods are added
type UnimplementedObjectStoreServer struct{}

func (UnimplementedObjectStoreServer) Get(context.Context, *GetRequest) (*GetResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedObjectStoreServer) Head(context.Context, *HeadRequest) (*HeadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Head not implemented")
}
func (UnimplementedObjectStoreServer) Put(context.Context, *PutRequest) (*PutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedObjectStoreServer) Delete(context.Context, *DeleteRequest) (*DeleteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedObjectStoreServer) List(context.Context, *ListRequest) (*ListResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method List not implemented")
}
func (UnimplementedObjectStoreServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}
func (UnimplementedObjectStoreServer) Join(context.Context, *JoinRequest) (*JoinResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Join not implemented")
}

func RegisterObjectStoreServer(s grpc.ServiceRegistrar, srv ObjectStoreServer) {
	s.RegisterService(&ObjectStore_ServiceDesc, srv)
}

// builds the unary handler for one method
func unaryHandler[Req any, Resp any](fullMethod string, call func(ObjectStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ObjectStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ObjectStoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ObjectStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObjectStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unaryHandler(ObjectStore_Get_FullMethodName, ObjectStoreServer.Get)},
		{MethodName: "Head", Handler: unaryHandler(ObjectStore_Head_FullMethodName, ObjectStoreServer.Head)},
		{MethodName: "Put", Handler: unaryHandler(ObjectStore_Put_FullMethodName, ObjectStoreServer.Put)},
		{MethodName: "Delete", Handler: unaryHandler(ObjectStore_Delete_FullMethodName, ObjectStoreServer.Delete)},
		{MethodName: "List", Handler: unaryHandler(ObjectStore_List_FullMethodName, ObjectStoreServer.List)},
		{MethodName: "Status", Handler: unaryHandler(ObjectStore_Status_FullMethodName, ObjectStoreServer.Status)},
		{MethodName: "Join", Handler: unaryHandler(ObjectStore_Join_FullMethodName, ObjectStoreServer.Join)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "objmutex/v1/objectstore",
}
