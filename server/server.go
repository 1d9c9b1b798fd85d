// Package server implements the session-authenticated RPC service:
// session establishment from an externally-issued credential, per-call
// token verification with sequence-number freshness, and the concurrent
// session table behind both.
package server

import (
	"context"
	"log"
	"net/http"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string             // TCP address to listen on (e.g., ":9090")
	Advertise   string             // published address clients bind credentials to (e.g., "ws://host:9090/rpc")
	Level       Level              // security level
	Credentials credential.Service // external credential service
}

// Server serves the RPC protocol over websocket connections.
type Server struct {
	listenAddr string
	advertise  string
	level      Level
	cred       credential.Service
	store      *Store
	mac        macPeer
}

// New creates a server. The session table starts empty regardless of
// level; only LevelSession ever populates it.
func New(cfg Config) *Server {
	return &Server{
		listenAddr: cfg.ListenAddr,
		advertise:  cfg.Advertise,
		level:      cfg.Level,
		cred:       cfg.Credentials,
		store:      NewStore(),
	}
}

// Store exposes the session table for eviction scheduling.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the HTTP handler that upgrades to websocket and
// serves the RPC loop. One goroutine per connection; the handler
// returns when the connection dies.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sock, err := wire.Upgrade(w, r)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}
		s.serveConn(r.Context(), sock)
	})
}

// Run starts the HTTP listener. Blocks until the listener fails.
func (s *Server) Run() error {
	log.Printf("sealrpc server (level=%s) listening on %s", s.level, s.listenAddr)
	return http.ListenAndServe(s.listenAddr, s.Handler())
}

func (s *Server) serveConn(ctx context.Context, sock *wire.Socket) {
	defer sock.Close()

	for {
		var req wire.Request
		if err := sock.ReadMsg(ctx, &req); err != nil {
			// Connection closed or undecodable; either way this
			// conn is done. Sessions survive the connection.
			return
		}

		resp := s.dispatch(ctx, &req)

		if err := sock.WriteMsg(ctx, resp); err != nil {
			log.Printf("write error: %v", err)
			return
		}
	}
}

// dispatch routes a request to its handler. Authorization failures
// become error codes in the response, never a dropped connection; the
// server keeps serving other sessions.
func (s *Server) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	resp := &wire.Response{Tag: req.Tag}

	var (
		body any
		err  error
	)
	switch req.Op {
	case wire.OpAuthenticate:
		body, err = s.handleAuthenticate(ctx, req.Body)
	case wire.OpHello:
		body, err = s.handleHello(ctx, req.Body)
	case wire.OpClose:
		body, err = s.handleClose(req.Body)
	default:
		err = wire.ErrUnknownOp
	}

	if err != nil {
		resp.Err = wire.CodeForError(err)
		return resp
	}
	if body != nil {
		encoded, err := wire.Marshal(body)
		if err != nil {
			log.Printf("encode response for %s: %v", req.Op, err)
			resp.Err = "internal"
			return resp
		}
		resp.Body = encoded
	}
	return resp
}
