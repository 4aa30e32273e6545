package wire

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	ErrAddressInvalid = errors.New("wire: address must be a ws:// or wss:// url")
	ErrConnClosed     = errors.New("wire: connection closed")
)

// Conn is a duplex channel delivering whole frames. The client core
// never sees transport framing, only frame payloads.
type Conn interface {
	// ReadFrame blocks until the next whole frame arrives.
	ReadFrame(ctx context.Context) ([]byte, error)
	// WriteFrame sends one whole frame. Safe for concurrent use.
	WriteFrame(ctx context.Context, data []byte) error
	Close() error
}

// WebSocket carries CBOR frames over a websocket connection.
type WebSocket struct {
	conn *websocket.Conn

	// gorilla allows a single concurrent writer
	wlock sync.Mutex

	closed sync.Once
}

// Dial opens a websocket connection to addr (ws or wss scheme only).
func Dial(ctx context.Context, addr string) (*WebSocket, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, ErrAddressInvalid
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, ErrAddressInvalid
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &WebSocket{conn: conn}, nil
}

func (ws *WebSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.conn.SetReadDeadline(deadline)
	}
	_, data, err := ws.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrConnClosed
		}
		return nil, err
	}
	return data, nil
}

func (ws *WebSocket) WriteFrame(ctx context.Context, data []byte) error {
	ws.wlock.Lock()
	defer ws.wlock.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.conn.SetWriteDeadline(deadline)
	}
	return ws.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (ws *WebSocket) Close() error {
	var err error
	ws.closed.Do(func() {
		ws.wlock.Lock()
		_ = ws.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.wlock.Unlock()
		err = ws.conn.Close()
	})
	return err
}
