// Package rpcapi implements the BlockApi gRPC service (spec.md §6),
// translating vstorageproto messages onto internal/engine calls, the
// same shape distr1-distri's builder service translates its protobuf
// messages onto filesystem operations.
package rpcapi

import (
	"context"
	"encoding/hex"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/engine"
	"github.com/Elzor/vstorage/internal/storeerr"
	"github.com/Elzor/vstorage/internal/vstorageproto"
)

// Server implements vstorageproto.BlockApiServer over an engine.Engine.
type Server struct {
	eng *engine.Engine
}

// New builds a Server.
func New(eng *engine.Engine) *Server {
	return &Server{eng: eng}
}

var _ vstorageproto.BlockApiServer = (*Server)(nil)

func (s *Server) Idx(ctx context.Context, req *vstorageproto.IdxRequest) (*vstorageproto.IdxResponse, error) {
	// engine.BlockIDs enumerates the live block-ids through the index's
	// Range, so rpcapi never reaches into internal/index directly.
	ids := s.eng.BlockIDs()
	return &vstorageproto.IdxResponse{BlockIDs: ids}, nil
}

func (s *Server) Status(ctx context.Context, req *vstorageproto.StatusRequest) (*vstorageproto.StatusResponse, error) {
	stats := s.eng.Stats()
	return &vstorageproto.StatusResponse{
		Status:      stats.Status,
		InitBytes:   stats.InitBytes,
		ActiveSlots: int32(stats.ActiveSlots),
		GCBytes:     stats.GCBytes,
		MoveBytes:   stats.MoveBytes,
		Objects:     int32(stats.Objects),
		AvailBytes:  stats.AvailBytes,
	}, nil
}

func (s *Server) Insert(ctx context.Context, req *vstorageproto.InsertRequest) (*vstorageproto.InsertResponse, error) {
	opts, err := toWriteOptions(req.Options)
	if err != nil {
		return nil, err
	}
	blockID, meta, err := s.eng.Insert(req.BlockID, req.ObjectID, req.Payload, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return &vstorageproto.InsertResponse{BlockID: blockID, Meta: toMeta(meta)}, nil
}

func (s *Server) Upsert(ctx context.Context, req *vstorageproto.UpsertRequest) (*vstorageproto.UpsertResponse, error) {
	opts, err := toWriteOptions(req.Options)
	if err != nil {
		return nil, err
	}
	meta, err := s.eng.Upsert(req.BlockID, req.ObjectID, req.Payload, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return &vstorageproto.UpsertResponse{Meta: toMeta(meta)}, nil
}

func (s *Server) Get(ctx context.Context, req *vstorageproto.GetRequest) (*vstorageproto.GetResponse, error) {
	var crc codec.Digest
	var hasCRC bool
	if req.Crc != "" {
		b, err := hex.DecodeString(req.Crc)
		if err == nil && len(b) == len(crc) {
			copy(crc[:], b)
			hasCRC = true
		}
	}
	res, err := s.eng.Get(req.BlockID, crc, hasCRC, req.AllowCompressed)
	if err != nil {
		return nil, toStatus(err)
	}
	if res.NotModified {
		return &vstorageproto.GetResponse{BlockID: req.BlockID, NotModified: true, Meta: toMeta(res.Meta)}, nil
	}
	return &vstorageproto.GetResponse{BlockID: req.BlockID, Payload: res.Payload, Meta: toMeta(res.Meta)}, nil
}

func (s *Server) Append(ctx context.Context, req *vstorageproto.AppendRequest) (*vstorageproto.AppendResponse, error) {
	opts, err := toWriteOptions(req.Options)
	if err != nil {
		return nil, err
	}
	meta, err := s.eng.Append(req.BlockID, req.Payload, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	return &vstorageproto.AppendResponse{Meta: toMeta(meta)}, nil
}

func (s *Server) Delete(ctx context.Context, req *vstorageproto.DeleteRequest) (*vstorageproto.DeleteResponse, error) {
	if err := s.eng.Delete(req.BlockID); err != nil {
		return nil, toStatus(err)
	}
	return &vstorageproto.DeleteResponse{}, nil
}

func toWriteOptions(o *vstorageproto.WriteOptions) (engine.WriteOptions, error) {
	if o == nil {
		return engine.WriteOptions{}, nil
	}
	opts := engine.WriteOptions{
		ContentType: o.ContentType,
		HashFunc:    codec.HashFunction(o.HashFun),
	}
	if o.Compress {
		opts.Compress = codec.CompressionLZ4
	}
	if o.Hash != "" {
		b, err := hex.DecodeString(o.Hash)
		if err != nil || len(b) != len(opts.Hash) {
			return opts, status.Error(codes.InvalidArgument, "bad hash field")
		}
		copy(opts.Hash[:], b)
		opts.HasHash = true
	}
	return opts, nil
}

func toMeta(m engine.Meta) *vstorageproto.Meta {
	return &vstorageproto.Meta{
		Size:               m.Size,
		Crc:                hex.EncodeToString(m.Hash[:]),
		Generation:         m.Generation,
		CreationTimeMillis: m.CreationTimeMillis,
		ContentType:        m.ContentType,
		ObjectID:           m.ObjectID,
	}
}

func toStatus(err error) error {
	kind, ok := storeerr.KindOf(err)
	if !ok {
		return status.Error(codes.Internal, err.Error())
	}
	switch kind {
	case storeerr.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case storeerr.KindExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case storeerr.KindHashMismatch, storeerr.KindUnsupportedHash, storeerr.KindUnsupportedCompression:
		return status.Error(codes.InvalidArgument, err.Error())
	case storeerr.KindTooLarge:
		return status.Error(codes.OutOfRange, err.Error())
	case storeerr.KindNoSpace:
		return status.Error(codes.ResourceExhausted, err.Error())
	case storeerr.KindCorruption, storeerr.KindIOError:
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
