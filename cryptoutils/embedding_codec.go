// Package cryptoutils implements the embedding codec: authenticated
// symmetric encryption of fixed-dimension float32 vectors, ciphertext
// content hashing for deduplication, and encryption key loading.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

const (
	// KeySize is the required AES-256 key length in bytes.
	KeySize = 32

	// nonceSize is the standard GCM nonce length.
	nonceSize = 12
)

// EmbeddingCodec encrypts and decrypts biometric embedding vectors with
// AES-256-GCM. Tampered or malformed ciphertext fails the authentication
// tag check and is rejected; corrupted floats are never returned.
//
// The codec holds no mutable state beyond the key and is safe for
// unsynchronized concurrent use.
type EmbeddingCodec struct {
	aead cipher.AEAD
	dim  int
}

// NewEmbeddingCodec creates a codec for vectors of the given dimension.
// The key must be exactly 32 bytes; the service must not start without a
// valid key.
func NewEmbeddingCodec(key []byte, dim int) (*EmbeddingCodec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", interfaces.ErrMissingKey, KeySize, len(key))
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMissingKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMissingKey, err)
	}

	return &EmbeddingCodec{aead: aead, dim: dim}, nil
}

// Dimension returns the vector dimension this codec accepts.
func (c *EmbeddingCodec) Dimension() int { return c.dim }

// Encrypt serializes a vector as little-endian float32 and seals it with
// a fresh random nonce. Output layout: nonce || ciphertext || tag, a
// self-describing fixed structure.
func (c *EmbeddingCodec) Encrypt(vector []float32) ([]byte, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", interfaces.ErrDimensionMismatch, c.dim, len(vector))
	}

	plaintext := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(plaintext[4*i:], math.Float32bits(v))
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt and decodes the vector.
// Returns ErrCryptoFailure on tag mismatch, truncated input, or a payload
// whose length does not match the codec dimension.
func (c *EmbeddingCodec) Decrypt(ciphertext []byte) ([]float32, error) {
	if len(ciphertext) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", interfaces.ErrCryptoFailure)
	}

	nonce := ciphertext[:nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCryptoFailure, err)
	}

	if len(plaintext)%4 != 0 || len(plaintext)/4 != c.dim {
		return nil, fmt.Errorf("%w: payload length %d does not match dimension %d",
			interfaces.ErrCryptoFailure, len(plaintext), c.dim)
	}

	vector := make([]float32, c.dim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(plaintext[4*i:]))
	}
	return vector, nil
}

// ContentHash returns the SHA-256 hex digest of the full ciphertext,
// nonce included. It is used for deduplication only, not for security:
// collision resistance is all that is required of it.
//
// Because the nonce is part of the digest, re-encrypting an identical
// plaintext vector produces a different hash. Identical re-registrations
// are therefore only recognized while the original ciphertext is still
// the active record; this is the documented, intentionally weaker
// ciphertext-hash semantics.
func ContentHash(ciphertext []byte) string {
	sum := sha256.Sum256(ciphertext)
	return hex.EncodeToString(sum[:])
}
