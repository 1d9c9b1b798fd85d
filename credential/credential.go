// Package credential is the boundary to the external credential service.
// The service turns an arbitrary payload into an opaque credential bound
// to the issuing principal, and verifies such credentials back into a
// (uid, gid, payload) triple. The rest of the system treats it as a
// black box behind the Service interface.
//
// For session establishment the payload is the client's freshly
// generated shared key followed by the ASCII address of the intended
// server. Binding the destination into the signed payload stops a
// credential captured in transit from being replayed against another
// server.
package credential

import (
	"context"
	"errors"

	"github.com/keaganluttrell/sealrpc/pkg/token"
)

// Errors reported by Service implementations and the payload helpers.
var (
	ErrEncode   = errors.New("credential encode failed")
	ErrDecode   = errors.New("credential decode failed")
	ErrTooShort = errors.New("credential payload too short")
)

// Identity is the principal the service resolved from a credential.
type Identity struct {
	UID uint32
	GID uint32
}

// Service issues and verifies opaque credentials. Implementations must
// be safe for concurrent use.
type Service interface {
	// Encode signs the payload for the calling principal and returns
	// the opaque credential.
	Encode(ctx context.Context, payload []byte) (string, error)

	// Decode verifies a credential and returns the principal it was
	// issued to plus the embedded payload.
	Decode(ctx context.Context, cred string) (Identity, []byte, error)
}

// BuildPayload lays out a session payload: 32-byte shared key followed
// by the destination address. No length prefix; the decoder derives the
// address length from the total.
func BuildPayload(key []byte, destination string) []byte {
	payload := make([]byte, 0, len(key)+len(destination))
	payload = append(payload, key...)
	payload = append(payload, destination...)
	return payload
}

// SplitPayload splits a decoded payload back into shared key and
// destination. The payload must hold a full key plus at least one
// address byte.
func SplitPayload(payload []byte) (key []byte, destination string, err error) {
	if len(payload) <= token.KeySize {
		return nil, "", ErrTooShort
	}
	return payload[:token.KeySize], string(payload[token.KeySize:]), nil
}
