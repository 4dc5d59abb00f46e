package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Hash parameters. Base64 is used for the salt and digest fields because
// the argon2 hash string uses $ as a field delimiter.
const (
	argonMemKiB  = 65536
	argonTime    = 3
	argonThreads = 4
	argonSaltLen = 16
	argonKeyLen  = 32
)

// MaxLength is the longest password accepted for hashing.
const MaxLength = 128

// Hash derives an argon2id hash string for the supplied password.
func Hash(password string) (string, error) {
	if len(password) > MaxLength {
		return "", fmt.Errorf("password exceeds %d characters", MaxLength)
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemKiB, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemKiB, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

// Verify reports whether password matches the argon2id hash string,
// using the parameters recorded in the hash itself.
func Verify(password, hash string) (bool, error) {
	fields := strings.Split(hash, "$")
	if len(fields) != 6 || fields[1] != "argon2id" {
		return false, errors.New("invalid argon2id hash string")
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("failed to parse hash version: %w", err)
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var memKiB, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &memKiB, &iterations, &threads); err != nil {
		return false, fmt.Errorf("failed to parse hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	stored, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode digest: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, iterations, memKiB, threads, uint32(len(stored)))

	return subtle.ConstantTimeCompare(digest, stored) == 1, nil
}
