package keychain

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKeyHex(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return hex.EncodeToString(key)
}

func TestCipherSealOpenRoundTrip(t *testing.T) {
	c, err := NewCipher(randomKeyHex(t))
	require.NoError(t, err)

	sealed, err := c.Seal([]byte(`{"token":"abc123"}`))
	require.NoError(t, err)

	plaintext, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc123"}`, string(plaintext))
}

func TestCipherRejectsBadKey(t *testing.T) {
	_, err := NewCipher("not-hex-and-wrong-length")
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestCipherOpenRejectsTamperedPayload(t *testing.T) {
	c, err := NewCipher(randomKeyHex(t))
	require.NoError(t, err)

	sealed, err := c.Seal([]byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = c.Open(sealed)
	assert.Error(t, err)
}

func TestStoreNeedsRenewal(t *testing.T) {
	s := &Store{renewAhead: 5 * time.Minute}

	assert.True(t, s.NeedsRenewal(time.Now().Add(2*time.Minute), true))
	assert.False(t, s.NeedsRenewal(time.Now().Add(10*time.Minute), true))
	assert.False(t, s.NeedsRenewal(time.Now().Add(2*time.Minute), false))
}
