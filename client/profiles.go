// profiles.go implements the two reduced security profiles. They share
// the wire protocol with the full session level but carry less state:
// the credential profile re-authenticates every call, the MAC profile
// keeps one implicit session keyed by the caller's uid.
package client

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/token"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// HelloWithCredential makes a hello call at the credential level: a
// fresh credential per call, no token, no replay protection.
func HelloWithCredential(ctx context.Context, conn *Conn, cred credential.Service, name string) (string, error) {
	c, err := cred.Encode(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	var out wire.HelloResponse
	if err := conn.Call(ctx, wire.OpHello, &wire.HelloRequest{Credential: c, Name: name}, &out); err != nil {
		return "", err
	}
	return out.Greeting, nil
}

// MACSession is the single-client profile: same token and sequence
// freshness as a full session, but the uid stands in for the session id
// and there is no destination binding. Not safe for concurrent use.
type MACSession struct {
	conn  *Conn
	cred  credential.Service
	uid   uint32
	seqNo uint64
	key   []byte
}

// NewMACSession creates a handle for the given caller uid. The uid must
// match the identity the credential service resolves for this process,
// since the server indexes the peer by it.
func NewMACSession(conn *Conn, cred credential.Service, uid uint32) *MACSession {
	return &MACSession{conn: conn, cred: cred, uid: uid}
}

// Authenticate registers this client's fresh key with the server. The
// credential payload is the bare 32-byte key.
func (m *MACSession) Authenticate(ctx context.Context) error {
	key := make([]byte, token.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	cred, err := m.cred.Encode(ctx, key)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := m.conn.Call(ctx, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred}, nil); err != nil {
		return err
	}

	m.key = key
	m.seqNo = 0
	return nil
}

// Hello makes an authenticated call; sequence semantics match
// SessionHandle.Hello.
func (m *MACSession) Hello(ctx context.Context, name string) (string, error) {
	if m.key == nil {
		return "", fmt.Errorf("%w: hello before authenticate", ErrInvalidState)
	}

	t := token.New(uint64(m.uid), m.seqNo, m.key)
	var out wire.HelloResponse
	err := m.conn.Call(ctx, wire.OpHello, &wire.HelloRequest{Token: t.Marshal(), Name: name}, &out)
	if err != nil {
		return "", err
	}
	m.seqNo++
	return out.Greeting, nil
}
