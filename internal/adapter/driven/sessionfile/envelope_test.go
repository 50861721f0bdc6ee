package sessionfile

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = make([]byte, 32)

func TestSealOpen_RoundTrip(t *testing.T) {
	for _, plaintext := range []string{"", "a", "bearer-token", "sid=1; very=long; cookie=jar"} {
		payload, err := seal(testKey, []byte(plaintext))
		require.NoError(t, err)

		out, err := open(testKey, payload)
		require.NoError(t, err)
		assert.Equal(t, plaintext, string(out))
	}
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	a, err := seal(testKey, []byte("same"))
	require.NoError(t, err)
	b, err := seal(testKey, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext+a.Tag, b.Ciphertext+b.Tag)
}

func TestSeal_SplitsTagFromCiphertext(t *testing.T) {
	payload, err := seal(testKey, []byte("payload"))
	require.NoError(t, err)

	tag, err := hex.DecodeString(payload.Tag)
	require.NoError(t, err)
	assert.Len(t, tag, tagSize)

	nonce, err := hex.DecodeString(payload.Nonce)
	require.NoError(t, err)
	assert.Len(t, nonce, nonceSize)

	ciphertext, err := hex.DecodeString(payload.Ciphertext)
	require.NoError(t, err)
	assert.Len(t, ciphertext, len("payload"))
}

func TestOpen_RejectsTamperedTag(t *testing.T) {
	payload, err := seal(testKey, []byte("guard-me"))
	require.NoError(t, err)

	tag, err := hex.DecodeString(payload.Tag)
	require.NoError(t, err)
	tag[0] ^= 0x01
	payload.Tag = hex.EncodeToString(tag)

	_, err = open(testKey, payload)
	assert.Error(t, err)
}

func TestOpen_RejectsWrongKey(t *testing.T) {
	payload, err := seal(testKey, []byte("keyed"))
	require.NoError(t, err)

	otherKey := make([]byte, 32)
	otherKey[0] = 0xff

	_, err = open(otherKey, payload)
	assert.Error(t, err)
}

func TestOpen_RejectsGarbageHex(t *testing.T) {
	payload, err := seal(testKey, []byte("x"))
	require.NoError(t, err)
	payload.Ciphertext = "zz-not-hex"

	_, err = open(testKey, payload)
	assert.Error(t, err)
}
