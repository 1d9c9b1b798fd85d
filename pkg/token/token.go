// Package token implements the fixed-size per-call authentication token.
// A token binds a session id and a sequence number under an HMAC keyed
// with the session's shared key. Possession of a valid token proves
// possession of the key for exactly one (session, sequence) pair.
package token

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// KeySize is the length of a session's shared key.
const KeySize = 32

// MACSize is the size of the MAC region. HMAC-SHA512 fills it exactly;
// a shorter MAC would leave a zero-padded tail so the token keeps a
// constant size either way.
const MACSize = sha512.Size

// Size is the wire size of a marshaled token:
// 8 (session id) + 8 (sequence number) + MACSize.
const Size = 8 + 8 + MACSize

// ErrBadLength is returned when unmarshaling a buffer that is not
// exactly Size bytes.
var ErrBadLength = errors.New("token has wrong length")

// Token is a per-call proof of key possession. It is generated fresh
// for every call and carries no state.
type Token struct {
	SessionID uint64
	SeqNo     uint64
	MAC       [MACSize]byte
}

// New creates a token for the given session id and sequence number.
// The MAC domain is exactly the 16 serialized bytes of the id and
// sequence number, so a token cannot be replayed for a different
// session or a different call.
func New(sessionID, seqNo uint64, key []byte) Token {
	t := Token{SessionID: sessionID, SeqNo: seqNo}

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:8], sessionID)
	binary.LittleEndian.PutUint64(header[8:16], seqNo)

	mac := hmac.New(sha512.New, key)
	mac.Write(header[:])
	copy(t.MAC[:], mac.Sum(nil))
	return t
}

// Verify reports whether t was created by New with the expected session
// id, sequence number, and key. The comparison covers the whole
// marshaled token, not just the MAC, and runs in constant time.
func (t Token) Verify(sessionID, seqNo uint64, key []byte) bool {
	expected := New(sessionID, seqNo, key)
	return subtle.ConstantTimeCompare(t.Marshal(), expected.Marshal()) == 1
}

// Marshal encodes the token as Size bytes, little-endian fields first.
func (t Token) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint64(buf[0:8], t.SessionID)
	binary.LittleEndian.PutUint64(buf[8:16], t.SeqNo)
	copy(buf[16:], t.MAC[:])
	return buf
}

// Unmarshal decodes a token from exactly Size bytes.
func Unmarshal(buf []byte) (Token, error) {
	if len(buf) != Size {
		return Token{}, ErrBadLength
	}
	var t Token
	t.SessionID = binary.LittleEndian.Uint64(buf[0:8])
	t.SeqNo = binary.LittleEndian.Uint64(buf[8:16])
	copy(t.MAC[:], buf[16:])
	return t, nil
}
