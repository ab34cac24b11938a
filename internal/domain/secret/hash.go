// Package secret provides hashing and constant-time verification for the
// two shared secrets in the gateway: the admin session PIN and the
// Telegram pairing secret. Neither is a multi-user credential store -
// there is exactly one of each per deployment.
package secret

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash returns an Argon2id hash of the raw secret in PHC format.
// Format: $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
func Hash(raw string) (string, error) {
	return argon2id.CreateHash(raw, argon2idParams)
}

// HashSHA256 returns the SHA-256 hex hash of the raw secret.
// Deprecated: kept only to verify secrets hashed by older config files.
func HashSHA256(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(stored string) string {
	if strings.HasPrefix(stored, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(stored, "sha256:") {
		return "sha256"
	}
	if len(stored) == 64 && isHexString(stored) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Verify checks a raw secret against a stored hash.
// Supports Argon2id (PHC format), SHA-256 prefixed, and legacy bare SHA-256 hex.
// Returns (true, nil) on match, (false, nil) on mismatch, and
// (false, ErrUnknownHashType) for unrecognized hash formats.
func Verify(raw, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case "argon2id":
		return safeArgon2idCompare(raw, stored)

	case "sha256":
		expected := stored
		if strings.HasPrefix(stored, "sha256:") {
			expected = strings.TrimPrefix(stored, "sha256:")
		}
		computed := HashSHA256(raw)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic recovery.
// The underlying library panics on malformed hash parameters (e.g. t=0, p=0);
// this converts those panics into errors so Verify never panics on bad config.
func safeArgon2idCompare(raw, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(raw, stored)
}
