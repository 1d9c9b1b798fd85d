// auth.go implements session establishment. A client submits an
// opaque credential whose payload carries its freshly generated shared
// key and the address it believes it is talking to; the server refuses
// credentials minted for anyone else.
package server

import (
	"context"
	"log"
	"sync"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/token"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// macPeer is the single implicit client at LevelMAC: one key, one
// sequence counter, no session table. The uid doubles as the token's
// session-id field.
type macPeer struct {
	mu         sync.Mutex
	registered bool
	uid        uint32
	seqNo      uint64
	key        []byte
}

func (s *Server) handleAuthenticate(ctx context.Context, body wire.RawMessage) (any, error) {
	var in wire.AuthRequest
	if err := wire.Unmarshal(body, &in); err != nil {
		return nil, wire.ErrCredentialRejected
	}

	ident, payload, err := s.cred.Decode(ctx, in.Credential)
	if err != nil {
		log.Printf("Failed to decode credential: %v", err)
		return nil, wire.ErrCredentialRejected
	}

	switch s.level {
	case LevelCredential:
		// No session state at all; authenticate is a no-op probe.
		log.Printf("Authenticated with uid=%d gid=%d", ident.UID, ident.GID)
		return &wire.AuthResponse{}, nil

	case LevelMAC:
		// The payload is the bare key; there is one well-known peer,
		// so no destination binding and no session id.
		if len(payload) != token.KeySize {
			log.Printf("Key length is expected to be %d, got %d", token.KeySize, len(payload))
			return nil, wire.ErrCredentialRejected
		}
		s.mac.mu.Lock()
		s.mac.registered = true
		s.mac.uid = ident.UID
		s.mac.seqNo = 0
		s.mac.key = append([]byte(nil), payload...)
		s.mac.mu.Unlock()
		log.Printf("Authenticated with uid=%d gid=%d", ident.UID, ident.GID)
		return &wire.AuthResponse{}, nil

	default: // LevelSession
		key, dest, err := credential.SplitPayload(payload)
		if err != nil {
			log.Printf("Invalid credential payload: %v", err)
			return nil, wire.ErrCredentialRejected
		}

		// A credential minted for server A must not be honored by
		// server B, even with a valid signature.
		if dest != s.advertise {
			log.Printf("Replay attempt: credential bound to %q, we are %q", dest, s.advertise)
			return nil, wire.ErrDestinationMismatch
		}

		sess, err := s.store.Create(ident, key)
		if err != nil {
			return nil, err
		}
		log.Printf("Authenticated with uid=%d gid=%d, session %x", ident.UID, ident.GID, sess.ID)
		return &wire.AuthResponse{SessionID: sess.ID}, nil
	}
}
