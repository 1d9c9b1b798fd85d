package wire

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single frame write so a stalled peer cannot
// hold the socket mutex forever.
const writeTimeout = 5 * time.Second

// Socket wraps a websocket connection and moves CBOR messages in binary
// frames. Framing: [4-byte little-endian size][CBOR message]; the size
// covers the whole frame and is validated on read.
type Socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Upgrade upgrades an HTTP request to a websocket and wraps it.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Socket, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host deployments, any origin
	})
	if err != nil {
		return nil, err
	}
	return &Socket{conn: c}, nil
}

// Dial connects to a server's websocket endpoint and wraps it.
func Dial(ctx context.Context, url string) (*Socket, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: c}, nil
}

// Close closes the connection.
func (s *Socket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// ReadMsg reads one frame and decodes it into v.
func (s *Socket) ReadMsg(ctx context.Context, v any) error {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("frame too short")
	}
	size := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) != size {
		return fmt.Errorf("frame size mismatch: header says %d, got %d", size, len(data))
	}
	return Unmarshal(data[4:], v)
}

// WriteMsg encodes v and writes it as one frame.
func (s *Socket) WriteMsg(ctx context.Context, v any) error {
	body, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}

	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	copy(buf[4:], body)

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return s.conn.Write(ctx, websocket.MessageBinary, buf)
}
