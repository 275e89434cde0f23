// Package auth verifies the debug-console admin token. Two modes are
// supported: a plaintext token compared in constant time, or an Argon2id
// hash so the deployment never stores the token itself. The hash mode wins
// when both are configured.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// HashToken hashes an admin token using Argon2id. The output is
// "base64(salt)$base64(hash)", suitable for DEBUG_ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyTokenHash checks a candidate token against an Argon2id hash.
func VerifyTokenHash(token, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("auth: invalid hash format")
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}
	expected, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	computed := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1, nil
}

// TokenVerifier validates admin login tokens against the configured
// credential. A zero TokenVerifier rejects everything.
type TokenVerifier struct {
	plain string
	hash  string
}

// NewTokenVerifier builds a verifier from the configured plaintext token
// and/or Argon2id hash.
func NewTokenVerifier(plainToken, tokenHash string) *TokenVerifier {
	return &TokenVerifier{plain: plainToken, hash: strings.TrimSpace(tokenHash)}
}

// Configured reports whether any credential is set at all.
func (v *TokenVerifier) Configured() bool {
	return v.plain != "" || v.hash != ""
}

// Verify checks a candidate token. Empty candidates always fail.
func (v *TokenVerifier) Verify(candidate string) bool {
	if candidate == "" {
		return false
	}
	if v.hash != "" {
		ok, err := VerifyTokenHash(candidate, v.hash)
		return err == nil && ok
	}
	if v.plain != "" {
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(v.plain)) == 1
	}
	return false
}
