package server

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/token"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

const testAdvertise = "ws://127.0.0.1:9090/rpc"

func newTestServer(level Level) (*Server, *credential.Fake) {
	fake := &credential.Fake{UID: 1000, GID: 100}
	s := New(Config{
		ListenAddr:  ":0",
		Advertise:   testAdvertise,
		Level:       level,
		Credentials: fake,
	})
	return s, fake
}

// call runs a request through the dispatcher the way serveConn would.
func call(t *testing.T, s *Server, op string, in any) *wire.Response {
	t.Helper()
	body, err := wire.Marshal(in)
	require.NoError(t, err)
	return s.dispatch(context.Background(), &wire.Request{Tag: 1, Op: op, Body: body})
}

func authenticate(t *testing.T, s *Server, fake *credential.Fake, key []byte, dest string) *wire.Response {
	t.Helper()
	cred, err := fake.Encode(context.Background(), credential.BuildPayload(key, dest))
	require.NoError(t, err)
	return call(t, s, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred})
}

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, token.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSessionLevel_FullScenario(t *testing.T) {
	s, fake := newTestServer(LevelSession)
	key := newKey(t)

	// authenticate with the server's own address
	resp := authenticate(t, s, fake, key, testAdvertise)
	require.Empty(t, resp.Err)

	var auth wire.AuthResponse
	require.NoError(t, wire.Unmarshal(resp.Body, &auth))
	require.NotZero(t, auth.SessionID)
	assert.Equal(t, 1, s.store.Len())

	hello := func(seq uint64) *wire.Response {
		tok := token.New(auth.SessionID, seq, key)
		return call(t, s, wire.OpHello, &wire.HelloRequest{Token: tok.Marshal(), Name: "alice"})
	}

	// seq 0 succeeds
	resp = hello(0)
	require.Empty(t, resp.Err)
	var greeting wire.HelloResponse
	require.NoError(t, wire.Unmarshal(resp.Body, &greeting))
	assert.Equal(t, "Hello, alice!", greeting.Greeting)

	// replaying seq 0 is rejected
	resp = hello(0)
	assert.Equal(t, "sequence_mismatch", resp.Err)

	// seq 1 succeeds
	resp = hello(1)
	require.Empty(t, resp.Err)

	// close with seq 2 removes the session
	tok := token.New(auth.SessionID, 2, key)
	resp = call(t, s, wire.OpClose, &wire.CloseRequest{Token: tok.Marshal()})
	require.Empty(t, resp.Err)
	assert.Equal(t, 0, s.store.Len())

	// anything further on that session fails
	resp = hello(2)
	assert.Equal(t, "session_not_found", resp.Err)
}

func TestSessionLevel_DestinationBinding(t *testing.T) {
	s, fake := newTestServer(LevelSession)

	resp := authenticate(t, s, fake, newKey(t), "ws://evil.example:9090/rpc")
	assert.Equal(t, "destination_mismatch", resp.Err)
	assert.Equal(t, 0, s.store.Len(), "failed authenticate must not leave a session behind")
}

func TestSessionLevel_CredentialRejected(t *testing.T) {
	s, fake := newTestServer(LevelSession)
	fake.FailDecode = true

	resp := authenticate(t, s, fake, newKey(t), testAdvertise)
	assert.Equal(t, "credential_rejected", resp.Err)
	assert.Equal(t, 0, s.store.Len())
}

func TestSessionLevel_PayloadTooShort(t *testing.T) {
	s, fake := newTestServer(LevelSession)

	// Bare key, no destination bytes.
	cred, err := fake.Encode(context.Background(), newKey(t))
	require.NoError(t, err)
	resp := call(t, s, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred})
	assert.Equal(t, "credential_rejected", resp.Err)
}

func TestSessionLevel_BadMACLeavesStateAlone(t *testing.T) {
	s, fake := newTestServer(LevelSession)
	key := newKey(t)

	resp := authenticate(t, s, fake, key, testAdvertise)
	require.Empty(t, resp.Err)
	var auth wire.AuthResponse
	require.NoError(t, wire.Unmarshal(resp.Body, &auth))

	// Token built with the wrong key
	tok := token.New(auth.SessionID, 0, newKey(t))
	resp = call(t, s, wire.OpHello, &wire.HelloRequest{Token: tok.Marshal(), Name: "mallory"})
	assert.Equal(t, "invalid_token", resp.Err)

	// Counter did not advance: the honest seq-0 token still works.
	good := token.New(auth.SessionID, 0, key)
	resp = call(t, s, wire.OpHello, &wire.HelloRequest{Token: good.Marshal(), Name: "alice"})
	assert.Empty(t, resp.Err)
}

func TestSessionLevel_UnknownSession(t *testing.T) {
	s, _ := newTestServer(LevelSession)

	tok := token.New(12345, 0, newKey(t))
	resp := call(t, s, wire.OpHello, &wire.HelloRequest{Token: tok.Marshal(), Name: "alice"})
	assert.Equal(t, "session_not_found", resp.Err)
}

func TestSessionLevel_MalformedToken(t *testing.T) {
	s, _ := newTestServer(LevelSession)

	resp := call(t, s, wire.OpHello, &wire.HelloRequest{Token: []byte{1, 2, 3}, Name: "alice"})
	assert.Equal(t, "invalid_token", resp.Err)
}

func TestMACLevel_Flow(t *testing.T) {
	s, fake := newTestServer(LevelMAC)
	key := newKey(t)

	cred, err := fake.Encode(context.Background(), key)
	require.NoError(t, err)
	resp := call(t, s, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred})
	require.Empty(t, resp.Err)

	uid := uint64(fake.UID)
	hello := func(seq uint64) *wire.Response {
		tok := token.New(uid, seq, key)
		return call(t, s, wire.OpHello, &wire.HelloRequest{Token: tok.Marshal(), Name: "bob"})
	}

	resp = hello(0)
	require.Empty(t, resp.Err)

	// replay rejected
	resp = hello(0)
	assert.Equal(t, "sequence_mismatch", resp.Err)

	resp = hello(1)
	require.Empty(t, resp.Err)

	// close has no meaning without a session table
	tok := token.New(uid, 2, key)
	resp = call(t, s, wire.OpClose, &wire.CloseRequest{Token: tok.Marshal()})
	assert.Equal(t, "unknown_op", resp.Err)
}

func TestMACLevel_RejectsWrongKeyLength(t *testing.T) {
	s, fake := newTestServer(LevelMAC)

	cred, err := fake.Encode(context.Background(), []byte("short"))
	require.NoError(t, err)
	resp := call(t, s, wire.OpAuthenticate, &wire.AuthRequest{Credential: cred})
	assert.Equal(t, "credential_rejected", resp.Err)
}

func TestMACLevel_HelloBeforeAuthenticate(t *testing.T) {
	s, fake := newTestServer(LevelMAC)

	tok := token.New(uint64(fake.UID), 0, newKey(t))
	resp := call(t, s, wire.OpHello, &wire.HelloRequest{Token: tok.Marshal(), Name: "bob"})
	assert.Equal(t, "session_not_found", resp.Err)
}

func TestCredentialLevel_Flow(t *testing.T) {
	s, fake := newTestServer(LevelCredential)

	cred, err := fake.Encode(context.Background(), nil)
	require.NoError(t, err)

	resp := call(t, s, wire.OpHello, &wire.HelloRequest{Credential: cred, Name: "carol"})
	require.Empty(t, resp.Err)

	var greeting wire.HelloResponse
	require.NoError(t, wire.Unmarshal(resp.Body, &greeting))
	assert.Equal(t, "Hello, carol!", greeting.Greeting)

	// A bad credential fails the call; there is no session to fall back on.
	resp = call(t, s, wire.OpHello, &wire.HelloRequest{Credential: "forged", Name: "carol"})
	assert.Equal(t, "credential_rejected", resp.Err)
}

func TestDispatch_UnknownOp(t *testing.T) {
	s, _ := newTestServer(LevelSession)

	resp := s.dispatch(context.Background(), &wire.Request{Tag: 9, Op: "transmogrify"})
	assert.Equal(t, uint16(9), resp.Tag)
	assert.Equal(t, "unknown_op", resp.Err)
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"credential", LevelCredential},
		{"mac", LevelMAC},
		{"session", LevelSession},
	} {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.in, got.String())
	}

	_, err := ParseLevel("paranoid")
	assert.Error(t, err)
}
