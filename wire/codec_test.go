package wire

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InsightCenterNoodles/Penne/nooid"
)

func TestDecodeFrame(t *testing.T) {
	data, err := cbor.Marshal([]any{
		0, map[string]any{"name": "boop"},
		35, map[string]any{},
	})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(0), msgs[0].Tag)
	assert.Equal(t, "boop", msgs[0].Payload["name"])
	assert.Equal(t, uint32(35), msgs[1].Tag)
}

func TestDecodeFrameNilPayload(t *testing.T) {
	data, err := cbor.Marshal([]any{35, nil})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Payload)
}

func TestDecodeFrameRejectsMalformed(t *testing.T) {
	odd, err := cbor.Marshal([]any{0, map[string]any{}, 1})
	require.NoError(t, err)
	_, err = DecodeFrame(odd)
	assert.ErrorIs(t, err, ErrBadFrame)

	badTag, err := cbor.Marshal([]any{"zero", map[string]any{}})
	require.NoError(t, err)
	_, err = DecodeFrame(badTag)
	assert.ErrorIs(t, err, ErrBadFrame)

	badPayload, err := cbor.Marshal([]any{0, []any{"not", "a", "map"}})
	require.NoError(t, err)
	_, err = DecodeFrame(badPayload)
	assert.ErrorIs(t, err, ErrBadFrame)

	_, err = DecodeFrame([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestDecodeFrameNestedMapsAreStringKeyed(t *testing.T) {
	data, err := cbor.Marshal([]any{
		33, map[string]any{"context": map[string]any{"table": []any{1, 0}}},
	})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	inner, ok := msgs[0].Payload["context"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, inner, "table")
}

func TestEncodeMessageRoundTrip(t *testing.T) {
	data, err := EncodeMessage(TagInvoke, &Invoke{
		Method:   nooid.MethodID(4, 1),
		Args:     []any{"x"},
		InvokeID: "0",
		Context:  nooid.TableContext(nooid.TableID(2, 0)),
	})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, TagInvoke, msgs[0].Tag)
	assert.Equal(t, "0", msgs[0].Payload["invoke_id"])
	assert.Equal(t, []any{uint64(4), uint64(1)}, msgs[0].Payload["method"])
	assert.Equal(t, []any{"x"}, msgs[0].Payload["args"])

	ctx, ok := msgs[0].Payload["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{uint64(2), uint64(0)}, ctx["table"])
}

func TestEncodeIntro(t *testing.T) {
	data, err := EncodeMessage(TagIntro, Intro{ClientName: "tester"})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, TagIntro, msgs[0].Tag)
	assert.Equal(t, "tester", msgs[0].Payload["client_name"])
}

func TestEncodeMessageOmitsNilContext(t *testing.T) {
	data, err := EncodeMessage(TagInvoke, &Invoke{
		Method:   nooid.MethodID(0, 0),
		InvokeID: "3",
	})
	require.NoError(t, err)

	msgs, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.NotContains(t, msgs[0].Payload, "context")
}

func TestDialRejectsNonWebsocketAddress(t *testing.T) {
	for _, addr := range []string{"http://host", "host:50000", "://"} {
		_, err := Dial(context.Background(), addr)
		assert.ErrorIs(t, err, ErrAddressInvalid, "addr %q", addr)
	}
}
