// Package client drives the session-authentication protocol against a
// sealrpc server: authenticate once, make token-carrying calls, close.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/keaganluttrell/sealrpc/pkg/resilience"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// Conn is a connection to a sealrpc server. Calls are serialized on the
// connection; the response to a request is matched by tag.
type Conn struct {
	url  string
	sock *wire.Socket
	mu   sync.Mutex
	tag  uint16
}

// Dialer abstracts connection creation for testing.
type Dialer struct {
	RetryConfig resilience.RetryConfig
}

// NewDialer creates a Dialer with default retry settings.
func NewDialer() *Dialer {
	return &Dialer{RetryConfig: resilience.DefaultRetryConfig()}
}

// Dial connects to a server's websocket endpoint with retry.
func (d *Dialer) Dial(ctx context.Context, url string) (*Conn, error) {
	var sock *wire.Socket
	err := resilience.Retry(ctx, d.RetryConfig, func() error {
		s, err := wire.Dial(ctx, url)
		if err != nil {
			return err
		}
		sock = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{url: url, sock: sock}, nil
}

// Dial connects with the default dialer.
func Dial(ctx context.Context, url string) (*Conn, error) {
	return NewDialer().Dial(ctx, url)
}

// URL returns the address this connection was dialed with.
func (c *Conn) URL() string {
	return c.url
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.sock.Close()
}

// Call sends one request and waits for its response. A protocol error
// code in the response comes back as the matching sentinel from wire.
func (c *Conn) Call(ctx context.Context, op string, in, out any) error {
	body, err := wire.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tag++
	req := wire.Request{Tag: c.tag, Op: op, Body: body}

	if err := c.sock.WriteMsg(ctx, &req); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}

	var resp wire.Response
	if err := c.sock.ReadMsg(ctx, &resp); err != nil {
		return fmt.Errorf("receive %s response: %w", op, err)
	}
	if resp.Tag != req.Tag {
		return fmt.Errorf("tag mismatch: expected %d, got %d", req.Tag, resp.Tag)
	}
	if resp.Err != "" {
		return wire.ErrorForCode(resp.Err)
	}
	if out != nil && resp.Body != nil {
		if err := wire.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return nil
}
