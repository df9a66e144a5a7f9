package cryptoutils

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func testVector(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(i)*0.125 - 3.5
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewEmbeddingCodec(testKey(t), 128)
	require.NoError(t, err)

	vector := testVector(128)
	ciphertext, err := codec.Encrypt(vector)
	require.NoError(t, err)
	require.NotEmpty(t, ciphertext)

	decrypted, err := codec.Decrypt(ciphertext)
	require.NoError(t, err)
	// float32 round-trips through the codec bit-exactly
	assert.Equal(t, vector, decrypted)
}

func TestNewEmbeddingCodecRejectsBadKey(t *testing.T) {
	_, err := NewEmbeddingCodec(nil, 128)
	assert.ErrorIs(t, err, interfaces.ErrMissingKey)

	_, err = NewEmbeddingCodec(make([]byte, 16), 128)
	assert.ErrorIs(t, err, interfaces.ErrMissingKey)
}

func TestEncryptRejectsWrongDimension(t *testing.T) {
	codec, err := NewEmbeddingCodec(testKey(t), 128)
	require.NoError(t, err)

	_, err = codec.Encrypt(testVector(64))
	assert.ErrorIs(t, err, interfaces.ErrDimensionMismatch)
}

func TestDecryptDetectsTampering(t *testing.T) {
	codec, err := NewEmbeddingCodec(testKey(t), 16)
	require.NoError(t, err)

	ciphertext, err := codec.Encrypt(testVector(16))
	require.NoError(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0x01

	_, err = codec.Decrypt(tampered)
	assert.ErrorIs(t, err, interfaces.ErrCryptoFailure)
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	codec, err := NewEmbeddingCodec(testKey(t), 16)
	require.NoError(t, err)

	_, err = codec.Decrypt([]byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, interfaces.ErrCryptoFailure)
}

func TestDecryptRejectsForeignKey(t *testing.T) {
	codec1, err := NewEmbeddingCodec(testKey(t), 16)
	require.NoError(t, err)
	codec2, err := NewEmbeddingCodec(testKey(t), 16)
	require.NoError(t, err)

	ciphertext, err := codec1.Encrypt(testVector(16))
	require.NoError(t, err)

	_, err = codec2.Decrypt(ciphertext)
	assert.ErrorIs(t, err, interfaces.ErrCryptoFailure)
}

func TestContentHashIsOverFullCiphertext(t *testing.T) {
	codec, err := NewEmbeddingCodec(testKey(t), 16)
	require.NoError(t, err)

	vector := testVector(16)
	ct1, err := codec.Encrypt(vector)
	require.NoError(t, err)
	ct2, err := codec.Encrypt(vector)
	require.NoError(t, err)

	// Same ciphertext hashes identically.
	assert.Equal(t, ContentHash(ct1), ContentHash(ct1))
	assert.Len(t, ContentHash(ct1), 64)

	// Fresh nonce means re-encrypting identical plaintext yields a
	// different hash: dedup is by ciphertext, not plaintext.
	assert.NotEqual(t, ContentHash(ct1), ContentHash(ct2))
}

func TestKeyFromHex(t *testing.T) {
	key := testKey(t)
	parsed, err := KeyFromHex("  " + hex.EncodeToString(key) + "\n")
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = KeyFromHex("deadbeef")
	assert.ErrorIs(t, err, interfaces.ErrMissingKey)

	_, err = KeyFromHex("not-hex")
	assert.ErrorIs(t, err, interfaces.ErrMissingKey)
}

func TestKeyFromPassphraseDeterministic(t *testing.T) {
	k1 := KeyFromPassphrase("hunter2", "test")
	k2 := KeyFromPassphrase("hunter2", "test")
	k3 := KeyFromPassphrase("hunter2", "other")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, KeySize)
}
