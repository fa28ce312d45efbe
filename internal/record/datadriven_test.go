package record

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/datadriven"

	"github.com/Elzor/vstorage/internal/codec"
)

// TestRoundtrip exercises record encode/decode through a table of fixed
// cases, in the teacher's data-driven style (sstable/test_fixtures.go).
func TestRoundtrip(t *testing.T) {
	datadriven.RunTest(t, "testdata/roundtrip", func(t *testing.T, d *datadriven.TestData) string {
		args := map[string]string{}
		for _, a := range d.CmdArgs {
			if len(a.Vals) > 0 {
				args[a.Key] = a.Vals[0]
			}
		}
		blockID, objectID, contentType, payload := args["block-id"], args["object-id"], args["content-type"], args["payload"]

		rec := New(blockID, objectID, contentType, []byte(payload), codec.HashMD5, codec.CompressionNone, codec.Digest{}, uint32(len(payload)), 1, 0)

		switch d.Cmd {
		case "encode":
			return fmt.Sprintf("total-len=%d", rec.TotalLen())
		case "decode":
			buf := Encode(rec)
			got, err := Decode(buf)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return fmt.Sprintf("version=%d tombstone=%t block-id=%s object-id=%s content-type=%s payload=%s",
				got.Version, got.Tombstone, got.BlockID, got.ObjectID, got.ContentType, string(got.Payload))
		default:
			return fmt.Sprintf("unknown command %q", d.Cmd)
		}
	})
}
