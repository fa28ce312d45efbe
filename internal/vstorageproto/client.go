package vstorageproto

import (
	"context"

	"google.golang.org/grpc"
)

// BlockApiClient is the client side of BlockApiServer, used by
// cmd/vstorage's `status` subcommand to talk to a running node.
type BlockApiClient interface {
	Idx(ctx context.Context, in *IdxRequest, opts ...grpc.CallOption) (*IdxResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Insert(ctx context.Context, in *InsertRequest, opts ...grpc.CallOption) (*InsertResponse, error)
	Upsert(ctx context.Context, in *UpsertRequest, opts ...grpc.CallOption) (*UpsertResponse, error)
	Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error)
	Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error)
}

type blockApiClient struct {
	cc *grpc.ClientConn
}

// NewBlockApiClient wraps cc, defaulting every call to this package's
// JSON codec (see codec.go) since no protoc-generated descriptor backs
// these messages.
func NewBlockApiClient(cc *grpc.ClientConn) BlockApiClient {
	return &blockApiClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append(opts, grpc.CallContentSubtype(CodecName))
}

func (c *blockApiClient) Idx(ctx context.Context, in *IdxRequest, opts ...grpc.CallOption) (*IdxResponse, error) {
	out := new(IdxResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Idx", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Status", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Insert(ctx context.Context, in *InsertRequest, opts ...grpc.CallOption) (*InsertResponse, error) {
	out := new(InsertResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Insert", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Upsert(ctx context.Context, in *UpsertRequest, opts ...grpc.CallOption) (*UpsertResponse, error) {
	out := new(UpsertResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Upsert", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Get", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Append", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blockApiClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Delete", in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
