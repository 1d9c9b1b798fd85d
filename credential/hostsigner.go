// hostsigner.go implements Service with host-issued signed tokens.
// Every process on a host (or trust domain) shares one ed25519 key;
// a credential is an EdDSA JWT carrying the caller's uid/gid and the
// payload. This plays the role the munge daemon plays on HPC clusters:
// host-trusted issuance, no per-user key distribution.
package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL bounds how long an issued credential stays decodable.
// Credentials are consumed once, immediately after issuance, so the
// window is short.
const DefaultTTL = 2 * time.Minute

// HostSigner issues and verifies credentials under a host-wide ed25519
// key. Safe for concurrent use; the key is immutable after construction.
type HostSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	uid  uint32
	gid  uint32
	ttl  time.Duration
}

type hostClaims struct {
	UID     uint32 `json:"uid"`
	GID     uint32 `json:"gid"`
	Payload string `json:"payload"`
	jwt.RegisteredClaims
}

// NewHostSigner builds a HostSigner from a private key. The uid/gid are
// the issuing principal; in production they come from the process owner.
func NewHostSigner(priv ed25519.PrivateKey, uid, gid uint32) *HostSigner {
	return &HostSigner{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
		uid:  uid,
		gid:  gid,
		ttl:  DefaultTTL,
	}
}

// LoadHostKey loads the host ed25519 key from the HOST_KEY_BASE64
// environment variable or a key file, generating an ephemeral one when
// neither is present. Generation keeps single-host demos and tests
// running without provisioning.
func LoadHostKey(path string) (ed25519.PrivateKey, error) {
	if val := os.Getenv("HOST_KEY_BASE64"); val != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return nil, fmt.Errorf("invalid HOST_KEY_BASE64: %w", err)
		}
		if len(keyBytes) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("HOST_KEY_BASE64 wrong length: %d", len(keyBytes))
		}
		return ed25519.PrivateKey(keyBytes), nil
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoded, err := base64.StdEncoding.DecodeString(string(data))
			if err != nil {
				return nil, fmt.Errorf("invalid host key file: %w", err)
			}
			if len(decoded) != ed25519.PrivateKeySize {
				return nil, fmt.Errorf("host key file wrong length: %d", len(decoded))
			}
			return ed25519.PrivateKey(decoded), nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read host key: %w", err)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	log.Printf("Generated Ephemeral Host Key (Public: %s)", base64.StdEncoding.EncodeToString(pub))

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err == nil {
			encoded := base64.StdEncoding.EncodeToString(priv)
			if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
				log.Printf("Warning: could not persist host key: %v", err)
			}
		}
	}
	return priv, nil
}

// Encode signs the payload into a JWT credential.
func (h *HostSigner) Encode(_ context.Context, payload []byte) (string, error) {
	now := time.Now()
	claims := hostClaims{
		UID:     h.uid,
		GID:     h.gid,
		Payload: base64.StdEncoding.EncodeToString(payload),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(h.priv)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return signed, nil
}

// Decode verifies a JWT credential and extracts identity and payload.
// Expired, malformed, or forged credentials all come back as ErrDecode.
func (h *HostSigner) Decode(_ context.Context, cred string) (Identity, []byte, error) {
	var claims hostClaims
	_, err := jwt.ParseWithClaims(cred, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	payload, err := base64.StdEncoding.DecodeString(claims.Payload)
	if err != nil {
		return Identity{}, nil, fmt.Errorf("%w: bad payload encoding", ErrDecode)
	}
	return Identity{UID: claims.UID, GID: claims.GID}, payload, nil
}
