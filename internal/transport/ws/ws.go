package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TeamQuantumFusion/rustaria-sub000/internal/transport"
)

const maxMessageSize = 64 * 1024

// Frames adapts a websocket connection to transport.FrameConn. Each text
// message is one frame.
type Frames struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

func Wrap(conn *websocket.Conn, writeWait time.Duration) *Frames {
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}
	conn.SetReadLimit(maxMessageSize)
	return &Frames{conn: conn, writeWait: writeWait}
}

func (f *Frames) ReadFrame() ([]byte, error) {
	_, b, err := f.conn.ReadMessage()
	return b, err
}

// WriteFrame is only called from the session's writer goroutine.
func (f *Frames) WriteFrame(b []byte) error {
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.writeWait))
	return f.conn.WriteMessage(websocket.TextMessage, b)
}

func (f *Frames) Close() error {
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return f.conn.Close()
}

// Dial connects to a websocket endpoint and starts a session over it.
func Dial(ctx context.Context, url string, decode transport.Decoder, opt transport.Options, writeWait time.Duration) (*transport.Session, error) {
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		ReadBufferSize:   maxMessageSize,
		WriteBufferSize:  maxMessageSize,
	}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return transport.NewSession(Wrap(conn, writeWait), decode, opt), nil
}

// Upgrader returns the server-side upgrader used by the dev server.
func Upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  maxMessageSize,
		WriteBufferSize: maxMessageSize,
		CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
	}
}
