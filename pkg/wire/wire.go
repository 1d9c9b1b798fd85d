// Package wire defines the RPC message envelope and the protocol error
// taxonomy shared by the server and the client. Messages are CBOR, carried
// in websocket binary frames with a length prefix.
package wire

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// Operation names.
const (
	OpAuthenticate = "authenticate"
	OpHello        = "hello"
	OpClose        = "close"
)

// Request is the envelope for every call. Body holds the op-specific
// payload, still encoded, so the dispatcher can route before decoding.
type Request struct {
	Tag  uint16          `cbor:"tag"`
	Op   string          `cbor:"op"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
}

// Response mirrors Request. Err carries a protocol error code; empty
// means success.
type Response struct {
	Tag  uint16          `cbor:"tag"`
	Err  string          `cbor:"err,omitempty"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
}

// AuthRequest carries the opaque credential for session establishment.
type AuthRequest struct {
	Credential string `cbor:"credential"`
}

// AuthResponse returns the new session id. Zero at the credential and
// MAC levels, which have no session table.
type AuthResponse struct {
	SessionID uint64 `cbor:"session_id"`
}

// HelloRequest is the placeholder business call. Token is a marshaled
// token.Token at the MAC and session levels; Credential is set instead
// at the credential level, where every call authenticates on its own.
type HelloRequest struct {
	Token      []byte `cbor:"token,omitempty"`
	Credential string `cbor:"credential,omitempty"`
	Name       string `cbor:"name"`
}

// HelloResponse carries the greeting.
type HelloResponse struct {
	Greeting string `cbor:"greeting"`
}

// CloseRequest terminates a session.
type CloseRequest struct {
	Token []byte `cbor:"token"`
}

// Protocol errors. Each has a stable wire code so the client recovers
// the same sentinel the server raised.
var (
	ErrCredentialRejected  = errors.New("credential rejected")
	ErrDestinationMismatch = errors.New("credential not intended for this destination")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSequenceMismatch    = errors.New("unexpected sequence number")
	ErrInvalidToken        = errors.New("invalid token")
	ErrUnknownOp           = errors.New("unknown operation")
)

var errToCode = map[error]string{
	ErrCredentialRejected:  "credential_rejected",
	ErrDestinationMismatch: "destination_mismatch",
	ErrSessionNotFound:     "session_not_found",
	ErrSequenceMismatch:    "sequence_mismatch",
	ErrInvalidToken:        "invalid_token",
	ErrUnknownOp:           "unknown_op",
}

var codeToErr = map[string]error{}

func init() {
	for err, code := range errToCode {
		codeToErr[code] = err
	}
}

// CodeForError maps an error to its wire code. Errors outside the
// protocol taxonomy map to "internal" so internal details never cross
// the wire.
func CodeForError(err error) string {
	for sentinel, code := range errToCode {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "internal"
}

// ErrorForCode maps a wire code back to its sentinel. Unknown codes
// come back as opaque errors carrying the code text.
func ErrorForCode(code string) error {
	if err, ok := codeToErr[code]; ok {
		return err
	}
	return errors.New("server error: " + code)
}
