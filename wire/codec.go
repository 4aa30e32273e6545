// Package wire holds the message layer of the NOODLES client: the CBOR
// codec for inbound frames and outbound messages, and the websocket
// transport the client runs over.
//
// A frame is a single CBOR array of alternating (tag, payload) pairs.
// The codec only decodes the envelope; interpreting the tags is the
// dispatch engine's job.
package wire

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/InsightCenterNoodles/Penne/nooid"
)

// Client-to-server message tags.
const (
	TagIntro  uint32 = 0
	TagInvoke uint32 = 1
)

var (
	ErrBadFrame = errors.New("wire: malformed message frame")
)

// Message is one decoded (tag, payload) pair from an inbound frame.
type Message struct {
	Tag     uint32
	Payload map[string]any
}

// Intro is the handshake message sent once when the connection opens.
type Intro struct {
	ClientName string `cbor:"client_name"`
}

// Invoke asks the server to run a method. Context is omitted for
// document-scoped calls.
type Invoke struct {
	Method   nooid.ID       `cbor:"method"`
	Args     []any          `cbor:"args"`
	InvokeID string         `cbor:"invoke_id"`
	Context  *nooid.Context `cbor:"context,omitempty"`
}

var decMode cbor.DecMode

func init() {
	var err error
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// DecodeFrame splits one inbound frame into its messages.
func DecodeFrame(data []byte) ([]Message, error) {
	var raw []any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: odd element count %d", ErrBadFrame, len(raw))
	}
	msgs := make([]Message, 0, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		tag, ok := tagOf(raw[i])
		if !ok {
			return nil, fmt.Errorf("%w: tag is %T", ErrBadFrame, raw[i])
		}
		payload, ok := raw[i+1].(map[string]any)
		if !ok && raw[i+1] != nil {
			return nil, fmt.Errorf("%w: payload is %T", ErrBadFrame, raw[i+1])
		}
		msgs = append(msgs, Message{Tag: tag, Payload: payload})
	}
	return msgs, nil
}

// EncodeMessage produces the outbound [tag, payload] frame.
func EncodeMessage(tag uint32, payload any) ([]byte, error) {
	return cbor.Marshal([]any{tag, payload})
}

func tagOf(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint64:
		return uint32(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	default:
		return 0, false
	}
}
