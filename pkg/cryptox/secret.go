package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters tuned for high-entropy random secrets, not
// user-chosen passwords. Digests are only used to let collaborators
// verify a presented secret without the manager retaining plaintext.
const (
	digestIterations  uint32 = 1
	digestMemory      uint32 = 32 * 1024
	digestParallelism uint8  = 2
	digestSaltLength         = 16
	digestKeyLength   uint32 = 32
)

// DigestSecret generates a PHC-format Argon2id digest of a secret,
// including salt and parameters.
func DigestSecret(secret string) (string, error) {
	salt := make([]byte, digestSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey(
		[]byte(secret),
		salt,
		digestIterations,
		digestMemory,
		digestParallelism,
		digestKeyLength,
	)
	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// PHC-style encoded string
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		digestMemory,
		digestIterations,
		digestParallelism,
		b64Salt,
		b64Hash,
	), nil
}

// VerifySecret compares a plaintext secret against a PHC-style Argon2id digest.
func VerifySecret(secret, encodedDigest string) error {
	// Parse PHC format: $argon2id$v=19$m=X,t=Y,p=Z$salt$hash
	parts := make([]string, 0, 6)
	start := 0
	for i := range len(encodedDigest) {
		if encodedDigest[i] == '$' {
			parts = append(parts, encodedDigest[start:i])
			start = i + 1
		}
	}
	parts = append(parts, encodedDigest[start:])

	// Expected structure: ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	if len(parts) != 6 {
		return errors.New("invalid digest format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return errors.New("invalid digest format: not argon2id")
	}
	if parts[2] != "v=19" {
		return errors.New("invalid digest format: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("invalid digest format: failed to parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("invalid digest format: failed to decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("invalid digest format: failed to decode hash: %w", err)
	}

	actual := argon2.IDKey([]byte(secret), salt, iters, mem, par, uint32(len(expected)))
	if subtle.ConstantTimeCompare(actual, expected) != 1 {
		return errors.New("secret does not match digest")
	}
	return nil
}
