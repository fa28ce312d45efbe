package rpcapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Elzor/vstorage/internal/engine"
	"github.com/Elzor/vstorage/internal/vstorageproto"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := engine.DefaultConfig(t.TempDir())
	cfg.SlabCapacity = 64 << 10
	eng, err := engine.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return New(eng)
}

func TestInsertGetDeleteRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	insertResp, err := s.Insert(ctx, &vstorageproto.InsertRequest{Payload: []byte("hello")})
	require.NoError(t, err)
	require.NotEmpty(t, insertResp.BlockID)
	require.EqualValues(t, 5, insertResp.Meta.Size)

	getResp, err := s.Get(ctx, &vstorageproto.GetRequest{BlockID: insertResp.BlockID})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), getResp.Payload)

	_, err = s.Delete(ctx, &vstorageproto.DeleteRequest{BlockID: insertResp.BlockID})
	require.NoError(t, err)

	_, err = s.Get(ctx, &vstorageproto.GetRequest{BlockID: insertResp.BlockID})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
}

func TestInsertDuplicateReturnsAlreadyExists(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, &vstorageproto.InsertRequest{BlockID: "dup", Payload: []byte("a")})
	require.NoError(t, err)

	_, err = s.Insert(ctx, &vstorageproto.InsertRequest{BlockID: "dup", Payload: []byte("b")})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())
}

func TestUpsertAndAppend(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, &vstorageproto.InsertRequest{BlockID: "b", Payload: []byte("x")})
	require.NoError(t, err)

	appendResp, err := s.Append(ctx, &vstorageproto.AppendRequest{BlockID: "b", Payload: []byte("y")})
	require.NoError(t, err)
	require.EqualValues(t, 2, appendResp.Meta.Size)

	getResp, err := s.Get(ctx, &vstorageproto.GetRequest{BlockID: "b"})
	require.NoError(t, err)
	require.Equal(t, []byte("xy"), getResp.Payload)

	upsertResp, err := s.Upsert(ctx, &vstorageproto.UpsertRequest{BlockID: "b", Payload: []byte("z")})
	require.NoError(t, err)
	require.EqualValues(t, 1, upsertResp.Meta.Size)
}

func TestIdxListsInsertedBlocks(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := s.Insert(ctx, &vstorageproto.InsertRequest{Payload: []byte("v")})
		require.NoError(t, err)
		ids = append(ids, resp.BlockID)
	}

	idx, err := s.Idx(ctx, &vstorageproto.IdxRequest{})
	require.NoError(t, err)
	require.ElementsMatch(t, ids, idx.BlockIDs)
}

func TestStatusReflectsInsertedObject(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, &vstorageproto.InsertRequest{Payload: []byte("abc")})
	require.NoError(t, err)

	st, err := s.Status(ctx, &vstorageproto.StatusRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, st.Objects)
}
