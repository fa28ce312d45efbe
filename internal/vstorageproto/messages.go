// Package vstorageproto defines the wire messages and BlockApi service
// contract mirroring the literal block_api.proto referenced by the
// original test suite's client.block_api_pb2 import. protoc is not run
// in this environment, so the messages below are hand-authored plain
// structs rather than protoc-gen-go output; see codec.go for how they
// travel over gRPC without a generated proto.Message implementation.
package vstorageproto

// Meta mirrors spec.md §4.5's returned metadata.
type Meta struct {
	Size               uint32 `json:"size"`
	Crc                string `json:"crc"`
	Generation         uint64 `json:"generation"`
	CreationTimeMillis uint64 `json:"creation_time_millis"`
	ContentType        string `json:"content_type"`
	ObjectID           string `json:"object_id"`
}

// WriteOptions mirrors spec.md §6's RPC WriteOptions message.
type WriteOptions struct {
	ContentType string `json:"content_type"`
	Compress    bool   `json:"compress"`
	Hash        string `json:"hash"`
	HashFun     int32  `json:"hash_fun"`
}

// IdxRequest/IdxResponse back the Idx method, returning every live block-id.
type IdxRequest struct{}

type IdxResponse struct {
	BlockIDs []string `json:"block_ids"`
}

// StatusRequest/StatusResponse back the Status method (spec.md §4.5.7).
type StatusRequest struct{}

type StatusResponse struct {
	Status      string `json:"status"`
	InitBytes   int64  `json:"init_bytes"`
	ActiveSlots int32  `json:"active_slots"`
	GCBytes     int64  `json:"gc_bytes"`
	MoveBytes   int64  `json:"move_bytes"`
	Objects     int32  `json:"objects"`
	AvailBytes  int64  `json:"avail_bytes"`
}

// InsertRequest/InsertResponse back the Insert method (spec.md §4.5.1).
type InsertRequest struct {
	BlockID  string        `json:"block_id"`
	ObjectID string        `json:"object_id"`
	Payload  []byte        `json:"payload"`
	Options  *WriteOptions `json:"options"`
}

type InsertResponse struct {
	BlockID string `json:"block_id"`
	Meta    *Meta  `json:"meta"`
}

// UpsertRequest/UpsertResponse back the Upsert method (spec.md §4.5.2).
type UpsertRequest struct {
	BlockID  string        `json:"block_id"`
	ObjectID string        `json:"object_id"`
	Payload  []byte        `json:"payload"`
	Options  *WriteOptions `json:"options"`
}

type UpsertResponse struct {
	Meta *Meta `json:"meta"`
}

// GetRequest/GetResponse back the Get method (spec.md §4.5.3).
type GetRequest struct {
	BlockID         string `json:"block_id"`
	Crc             string `json:"crc"`
	AllowCompressed bool   `json:"allow_compressed"`
}

type GetResponse struct {
	BlockID     string `json:"block_id"`
	Payload     []byte `json:"payload"`
	Meta        *Meta  `json:"meta"`
	NotModified bool   `json:"not_modified"`
}

// AppendRequest/AppendResponse back the Append method (spec.md §4.5.4).
type AppendRequest struct {
	BlockID string        `json:"block_id"`
	Payload []byte        `json:"payload"`
	Options *WriteOptions `json:"options"`
}

type AppendResponse struct {
	Meta *Meta `json:"meta"`
}

// DeleteRequest/DeleteResponse back the Delete method (spec.md §4.5.5).
type DeleteRequest struct {
	BlockID string `json:"block_id"`
}

type DeleteResponse struct{}
