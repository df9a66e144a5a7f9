package cryptoutils

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
	"golang.org/x/crypto/argon2"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/interfaces"
)

// KeyFromHex decodes a 64-character hex string into a 32-byte key.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMissingKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", interfaces.ErrMissingKey, KeySize, len(key))
	}
	return key, nil
}

// KeyFromFile reads a hex-encoded key from a file.
func KeyFromFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading key file: %v", interfaces.ErrMissingKey, err)
	}
	return KeyFromHex(string(raw))
}

// VaultKeySource fetches the embedding encryption key from a HashiCorp
// Vault KV v2 secret.
type VaultKeySource struct {
	// Address is the Vault server address, e.g. https://vault.example.com:8200.
	Address string

	// Token authenticates the client.
	Token string

	// Mount is the KV v2 mount path, e.g. "secret".
	Mount string

	// Path is the secret path within the mount.
	Path string

	// Field is the key of the hex-encoded value inside the secret data.
	Field string
}

// Fetch reads and decodes the key from Vault.
func (s VaultKeySource) Fetch(ctx context.Context) ([]byte, error) {
	config := vault.DefaultConfig()
	config.Address = s.Address

	client, err := vault.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: creating vault client: %v", interfaces.ErrMissingKey, err)
	}
	client.SetToken(s.Token)

	secret, err := client.KVv2(s.Mount).Get(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading vault secret: %v", interfaces.ErrMissingKey, err)
	}

	value, ok := secret.Data[s.Field].(string)
	if !ok {
		return nil, fmt.Errorf("%w: vault secret field %q missing or not a string", interfaces.ErrMissingKey, s.Field)
	}
	return KeyFromHex(value)
}

// KeyFromPassphrase derives a deterministic key from a passphrase and salt
// using Argon2id. Intended for development and tests where a managed key
// is unavailable.
func KeyFromPassphrase(passphrase, salt string) []byte {
	// Parameters: time=1, memory=64MiB, threads=4
	return argon2.IDKey([]byte(passphrase), []byte("biometric-key-"+salt), 1, 64*1024, 4, KeySize)
}
