package credential

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
)

// Fake is an in-memory Service for tests. Credentials are unsigned and
// only decodable by the same Fake instance, which is enough to exercise
// everything above the service boundary without a real issuer.
type Fake struct {
	UID uint32
	GID uint32

	// FailEncode/FailDecode force the corresponding error to simulate
	// an unavailable or rejecting service.
	FailEncode bool
	FailDecode bool

	mu     sync.Mutex
	issued int
}

// Encode wraps the payload in a recognizable prefix.
func (f *Fake) Encode(_ context.Context, payload []byte) (string, error) {
	if f.FailEncode {
		return "", ErrEncode
	}
	f.mu.Lock()
	f.issued++
	f.mu.Unlock()
	return "fake:" + base64.StdEncoding.EncodeToString(payload), nil
}

// Decode unwraps a credential produced by Encode.
func (f *Fake) Decode(_ context.Context, cred string) (Identity, []byte, error) {
	if f.FailDecode {
		return Identity{}, nil, ErrDecode
	}
	raw, ok := strings.CutPrefix(cred, "fake:")
	if !ok {
		return Identity{}, nil, ErrDecode
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Identity{}, nil, ErrDecode
	}
	return Identity{UID: f.UID, GID: f.GID}, payload, nil
}

// Issued reports how many credentials Encode has produced.
func (f *Fake) Issued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issued
}
