// session.go holds the client's side of the protocol state: the shared
// key, the session id the server assigned, and the sequence counter kept
// in lockstep with the server.
package client

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/token"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// ErrInvalidState is returned when an operation is called from the
// wrong session state. This is caller misuse, not a protocol failure.
var ErrInvalidState = errors.New("operation invalid in current session state")

// State is the lifecycle state of a SessionHandle.
type State int

const (
	StateUnauthenticated State = iota
	StateActive
	StateClosed // terminal
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SessionHandle drives the full protocol: authenticate, N token-carrying
// calls, close. Not safe for concurrent use; a handle issues calls
// sequentially. Independent handles may run in parallel freely.
type SessionHandle struct {
	conn *Conn
	cred credential.Service

	state     State
	sessionID uint64
	seqNo     uint64
	key       []byte
}

// NewSessionHandle creates an unauthenticated handle over conn.
func NewSessionHandle(conn *Conn, cred credential.Service) *SessionHandle {
	return &SessionHandle{conn: conn, cred: cred}
}

// State returns the handle's lifecycle state.
func (h *SessionHandle) State() State {
	return h.state
}

// SessionID returns the server-assigned session id. Zero before
// Authenticate succeeds.
func (h *SessionHandle) SessionID() uint64 {
	return h.sessionID
}

// Authenticate generates a fresh shared key, binds it and the
// destination into a credential, and establishes a session. Valid only
// in the unauthenticated state.
func (h *SessionHandle) Authenticate(ctx context.Context, destination string) error {
	if h.state != StateUnauthenticated {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidState, h.state)
	}

	key := make([]byte, token.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate session key: %w", err)
	}

	cred, err := h.cred.Encode(ctx, credential.BuildPayload(key, destination))
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	var out wire.AuthResponse
	if err := h.conn.Call(ctx, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred}, &out); err != nil {
		return err
	}

	h.sessionID = out.SessionID
	h.seqNo = 0
	h.key = key
	h.state = StateActive
	return nil
}

// Hello makes an authenticated call. The local sequence number advances
// only on success, so a rejected call leaves the handle in lockstep with
// whatever the server last accepted. No automatic retry: a lost response
// whose effect was applied server-side would be rejected by the sequence
// check, which is the correct at-most-once behavior.
func (h *SessionHandle) Hello(ctx context.Context, name string) (string, error) {
	if h.state != StateActive {
		return "", fmt.Errorf("%w: hello from %s", ErrInvalidState, h.state)
	}

	t := token.New(h.sessionID, h.seqNo, h.key)
	var out wire.HelloResponse
	err := h.conn.Call(ctx, wire.OpHello, &wire.HelloRequest{Token: t.Marshal(), Name: name}, &out)
	if err != nil {
		return "", err
	}

	h.seqNo++
	return out.Greeting, nil
}

// Close terminates the session. The handle transitions to the terminal
// closed state and discards its key regardless of the server's verdict;
// the server error, if any, is still returned.
func (h *SessionHandle) Close(ctx context.Context) error {
	if h.state != StateActive {
		return fmt.Errorf("%w: close from %s", ErrInvalidState, h.state)
	}

	t := token.New(h.sessionID, h.seqNo, h.key)
	err := h.conn.Call(ctx, wire.OpClose, &wire.CloseRequest{Token: t.Marshal()}, nil)

	for i := range h.key {
		h.key[i] = 0
	}
	h.key = nil
	h.sessionID = 0
	h.seqNo = 0
	h.state = StateClosed
	return err
}
