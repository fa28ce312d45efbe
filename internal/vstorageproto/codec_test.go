package vstorageproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	want := &InsertRequest{BlockID: "b1", ObjectID: "o1", Payload: []byte("data")}

	data, err := c.Marshal(want)
	require.NoError(t, err)

	got := new(InsertRequest)
	require.NoError(t, c.Unmarshal(data, got))
	require.Equal(t, want.BlockID, got.BlockID)
	require.Equal(t, want.ObjectID, got.ObjectID)
	require.Equal(t, want.Payload, got.Payload)
	require.Equal(t, CodecName, c.Name())
}
