// genkey mints a debug-console admin token and its argon2id hash.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go
//
// Put DEBUG_ADMIN_TOKEN_HASH in the server environment and hand the
// plain token to whoever operates the debug console. The server also
// accepts a plain DEBUG_ADMIN_TOKEN for local development, but the
// hash form keeps the secret out of the environment on shared hosts.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/Hanny658/Meta-Recommendation/internal/auth"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "error: generate token: %v\n", err)
		os.Exit(1)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := auth.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("DEBUG_ADMIN_TOKEN=%s\n", token)
	fmt.Printf("DEBUG_ADMIN_TOKEN_HASH=%s\n", hash)
	fmt.Println("Store the hash server-side; give the plain token to console users.")
}
