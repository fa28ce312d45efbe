package vstorageproto

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "vstorageproto.BlockApi"

// BlockApiServer is the service contract of spec.md §6's RPC surface.
type BlockApiServer interface {
	Idx(context.Context, *IdxRequest) (*IdxResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Insert(context.Context, *InsertRequest) (*InsertResponse, error)
	Upsert(context.Context, *UpsertRequest) (*UpsertResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
}

// RegisterBlockApiServer registers srv's methods on s, playing the role
// protoc-gen-go-grpc's generated registration function would.
func RegisterBlockApiServer(s *grpc.Server, srv BlockApiServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BlockApiServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Idx", Handler: idxHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Insert", Handler: insertHandler},
		{MethodName: "Upsert", Handler: upsertHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Append", Handler: appendHandler},
		{MethodName: "Delete", Handler: deleteHandler},
	},
}

func idxHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(IdxRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Idx(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Idx"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Idx(ctx, req.(*IdxRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func insertHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InsertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Insert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Insert"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Insert(ctx, req.(*InsertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func upsertHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(UpsertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Upsert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Upsert"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Upsert(ctx, req.(*UpsertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Get"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func appendHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AppendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Append"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Append(ctx, req.(*AppendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BlockApiServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Delete"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(BlockApiServer).Delete(ctx, req.(*DeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}
