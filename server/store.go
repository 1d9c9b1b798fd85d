// store.go owns the session table. Locking is two-level: the store
// mutex protects the id -> session mapping, each session carries its own
// mutex serializing verify+advance. Lock order is always store before
// session; the lookup path releases the store lock once the session lock
// is held, so calls on different sessions run in parallel.
package server

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/keaganluttrell/sealrpc/credential"
	"github.com/keaganluttrell/sealrpc/pkg/wire"
)

// Session binds a client identity, its shared key, and the replay
// counter. Mutable fields are only touched while the session mutex is
// held; the store hands sessions out already locked.
type Session struct {
	ID  uint64
	UID uint32
	GID uint32

	mu         sync.Mutex
	SharedKey  []byte
	SeqNo      uint64
	LastActive time.Time
}

// Release unlocks the session. Callers of Acquire must call it on every
// exit path.
func (s *Session) Release() {
	s.mu.Unlock()
}

// Store is the concurrent session table.
type Store struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
}

// NewStore creates an empty session table.
func NewStore() *Store {
	return &Store{
		sessions: make(map[uint64]*Session),
	}
}

// Create inserts a new session under a fresh random id and returns it.
// The id is drawn with crypto randomness and redrawn on the (negligible
// but free to check) chance it collides with a live session.
func (st *Store) Create(ident credential.Identity, key []byte) (*Session, error) {
	sess := &Session{
		UID:        ident.UID,
		GID:        ident.GID,
		SharedKey:  append([]byte(nil), key...),
		SeqNo:      0,
		LastActive: time.Now(),
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		id := binary.LittleEndian.Uint64(buf[:])
		if _, taken := st.sessions[id]; taken {
			continue
		}
		sess.ID = id
		st.sessions[id] = sess
		return sess, nil
	}
}

// Acquire looks up a session and returns it with its own lock held,
// releasing the store lock before returning. Taking the session lock
// under the store lock is what keeps a concurrent Remove from freeing
// the record between lookup and use.
func (st *Store) Acquire(id uint64) (*Session, error) {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return nil, wire.ErrSessionNotFound
	}
	sess.mu.Lock()
	st.mu.Unlock()
	return sess, nil
}

// Remove deletes a session after verify approves it. Unlike Acquire,
// the store lock is held across the whole operation: unlinking a record
// another goroutine is about to lock is a use-after-free, so deletion
// takes both locks in store -> session order and releases them together.
// On verify failure nothing is mutated. On success the shared key is
// zeroed before the record is dropped.
func (st *Store) Remove(id uint64, verify func(*Session) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		return wire.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if verify != nil {
		if err := verify(sess); err != nil {
			return err
		}
	}

	delete(st.sessions, id)
	zeroKey(sess.SharedKey)
	sess.SharedKey = nil
	return nil
}

// EvictIdle removes every session idle longer than maxIdle and returns
// how many were dropped. Same locking convention as Remove. No sweeper
// goroutine is started here; callers schedule this to taste.
func (st *Store) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, sess := range st.sessions {
		sess.mu.Lock()
		if sess.LastActive.Before(cutoff) {
			delete(st.sessions, id)
			zeroKey(sess.SharedKey)
			sess.SharedKey = nil
			evicted++
		}
		sess.mu.Unlock()
	}
	return evicted
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
