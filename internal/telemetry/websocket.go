package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsPort presents a WebSocket connection as a line stream: each text or
// binary message becomes one line.
type wsPort struct {
	conn *websocket.Conn
	buf  bytes.Buffer
	once sync.Once
}

func (p *wsPort) Read(b []byte) (int, error) {
	for p.buf.Len() == 0 {
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		p.buf.Write(bytes.TrimRight(msg, "\r\n"))
		p.buf.WriteByte('\n')
	}
	return p.buf.Read(b)
}

func (p *wsPort) Close() error {
	var err error
	p.once.Do(func() {
		p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = p.conn.Close()
	})
	return err
}

// DialWebSocket connects to a WebSocket telemetry endpoint.
func DialWebSocket(ctx context.Context, url string, bufSize int) (*Mux[io.ReadCloser], error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewMux[io.ReadCloser]("ws:"+url, &wsPort{conn: conn}, bufSize), nil
}
