package vstorageproto

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this package's messages travel
// under. Since the messages in messages.go are plain structs rather than
// protoc-gen-go output, they cannot ride the default "proto" codec;
// jsonCodec fills that role instead, registered globally so both the
// client (via grpc.CallContentSubtype) and the server (which looks the
// subtype up from the incoming request's content-type) agree on it.
const CodecName = "vstorage-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }
