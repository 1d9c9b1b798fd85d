// rpc.go implements the authenticated calls: hello (the placeholder
// business RPC) and close. Both validate the caller's token against the
// session it names before touching anything, and mutate nothing on any
// failure path.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/keaganluttrell/sealrpc/pkg/token"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

func (s *Server) handleHello(ctx context.Context, body wire.RawMessage) (any, error) {
	var in wire.HelloRequest
	if err := wire.Unmarshal(body, &in); err != nil {
		return nil, wire.ErrInvalidToken
	}

	switch s.level {
	case LevelCredential:
		// Every call stands alone: the credential is the whole proof.
		ident, _, err := s.cred.Decode(ctx, in.Credential)
		if err != nil {
			log.Printf("Unauthorized attempt to call the hello RPC: %v", err)
			return nil, wire.ErrCredentialRejected
		}
		log.Printf("Hello %s (uid %d)", in.Name, ident.UID)
		return &wire.HelloResponse{Greeting: greet(in.Name)}, nil

	case LevelMAC:
		t, err := token.Unmarshal(in.Token)
		if err != nil {
			return nil, wire.ErrInvalidToken
		}
		s.mac.mu.Lock()
		defer s.mac.mu.Unlock()
		if !s.mac.registered || t.SessionID != uint64(s.mac.uid) {
			return nil, wire.ErrSessionNotFound
		}
		if t.SeqNo != s.mac.seqNo {
			log.Printf("Unexpected sequence number for client uid=%d", s.mac.uid)
			return nil, wire.ErrSequenceMismatch
		}
		if !t.Verify(uint64(s.mac.uid), s.mac.seqNo, s.mac.key) {
			log.Printf("Unauthorized attempt to call the hello RPC")
			return nil, wire.ErrInvalidToken
		}
		s.mac.seqNo++
		log.Printf("Hello %s (uid %d)", in.Name, s.mac.uid)
		return &wire.HelloResponse{Greeting: greet(in.Name)}, nil

	default: // LevelSession
		t, err := token.Unmarshal(in.Token)
		if err != nil {
			return nil, wire.ErrInvalidToken
		}

		sess, err := s.store.Acquire(t.SessionID)
		if err != nil {
			return nil, err
		}
		defer sess.Release()

		if t.SeqNo != sess.SeqNo {
			log.Printf("Unexpected sequence number for session %x", sess.ID)
			return nil, wire.ErrSequenceMismatch
		}
		if !t.Verify(sess.ID, sess.SeqNo, sess.SharedKey) {
			log.Printf("Unauthorized attempt to call the hello RPC")
			return nil, wire.ErrInvalidToken
		}

		sess.LastActive = time.Now()
		sess.SeqNo++
		log.Printf("Hello %s (uid %d)", in.Name, sess.UID)
		return &wire.HelloResponse{Greeting: greet(in.Name)}, nil
	}
}

func (s *Server) handleClose(body wire.RawMessage) (any, error) {
	if s.level != LevelSession {
		// The reduced levels have no session to terminate.
		return nil, wire.ErrUnknownOp
	}

	var in wire.CloseRequest
	if err := wire.Unmarshal(body, &in); err != nil {
		return nil, wire.ErrInvalidToken
	}
	t, err := token.Unmarshal(in.Token)
	if err != nil {
		return nil, wire.ErrInvalidToken
	}

	err = s.store.Remove(t.SessionID, func(sess *Session) error {
		if t.SeqNo != sess.SeqNo {
			log.Printf("Unexpected sequence number for session %x", sess.ID)
			return wire.ErrSequenceMismatch
		}
		if !t.Verify(sess.ID, sess.SeqNo, sess.SharedKey) {
			log.Printf("Unauthorized attempt to call the close RPC")
			return wire.ErrInvalidToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Successfully removed session %x", t.SessionID)
	return nil, nil
}

func greet(name string) string {
	return fmt.Sprintf("Hello, %s!", name)
}
