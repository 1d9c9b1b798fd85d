package wire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	body, err := Marshal(&HelloRequest{Name: "alice", Token: []byte{1, 2, 3}})
	require.NoError(t, err)

	req := Request{Tag: 7, Op: OpHello, Body: body}
	buf, err := Marshal(&req)
	require.NoError(t, err)

	var got Request
	require.NoError(t, Unmarshal(buf, &got))
	assert.Equal(t, req.Tag, got.Tag)
	assert.Equal(t, OpHello, got.Op)

	var hello HelloRequest
	require.NoError(t, Unmarshal(got.Body, &hello))
	assert.Equal(t, "alice", hello.Name)
	assert.Equal(t, []byte{1, 2, 3}, hello.Token)
}

func TestMarshal_Deterministic(t *testing.T) {
	req := Request{Tag: 1, Op: OpAuthenticate}

	a, err := Marshal(&req)
	require.NoError(t, err)
	b, err := Marshal(&req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestErrorCodeRoundTrip(t *testing.T) {
	sentinels := []error{
		ErrCredentialRejected,
		ErrDestinationMismatch,
		ErrSessionNotFound,
		ErrSequenceMismatch,
		ErrInvalidToken,
		ErrUnknownOp,
	}

	for _, sentinel := range sentinels {
		code := CodeForError(sentinel)
		assert.NotEqual(t, "internal", code)
		assert.Equal(t, sentinel, ErrorForCode(code))

		// Wrapped errors still map to their code
		wrapped := fmt.Errorf("context: %w", sentinel)
		assert.Equal(t, code, CodeForError(wrapped))
	}
}

func TestCodeForError_Unknown(t *testing.T) {
	assert.Equal(t, "internal", CodeForError(errors.New("surprise")))
}

func TestErrorForCode_Unknown(t *testing.T) {
	err := ErrorForCode("mystery_code")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mystery_code")
}
