// The keygen command generates a random embedding encryption key and
// prints it as hex, suitable for the EMBEDDING_KEY environment variable
// or the crypto.key_hex config field.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/cryptoutils"
)

func main() {
	key := make([]byte, cryptoutils.KeySize)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hex.EncodeToString(key))
}
