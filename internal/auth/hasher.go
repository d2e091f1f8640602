package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash indicates a stored hash string that cannot be parsed.
	ErrInvalidHash = errors.New("auth: invalid password hash encoding")
	// ErrUnsupportedHashVersion indicates an argon2 version this build cannot verify.
	ErrUnsupportedHashVersion = errors.New("auth: unsupported argon2 version")
)

// Hasher provides one-way hashing and verification for credential secrets.
// Implementations must emit self-describing hash strings so parameters can be
// re-tuned without invalidating previously stored hashes.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// Argon2Params defines the argon2id cost parameters used for new hashes.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns interactive-login cost parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Verification refuses hashes whose stored parameters exceed these bounds so a
// crafted record cannot pin a CPU or exhaust memory.
const (
	maxVerifyMemoryKiB  = 1 << 21
	maxVerifyIterations = 64
	maxVerifyKeyLength  = 512
)

type argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher constructs the production argon2id hasher. Zero-valued
// fields in params fall back to defaults.
func NewArgon2Hasher(params Argon2Params) Hasher {
	defaults := DefaultArgon2Params()
	if params.MemoryKiB == 0 {
		params.MemoryKiB = defaults.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = defaults.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = defaults.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = defaults.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = defaults.KeyLength
	}
	return &argon2Hasher{params: params}
}

func (h *argon2Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: salt generation failed: %w", err)
	}

	key := argon2.IDKey(
		[]byte(secret),
		salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

func (h *argon2Hasher) Verify(secret, encoded string) (bool, error) {
	params, salt, key, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, error) {
	segments := strings.Split(encoded, "$")
	if len(segments) != 6 || segments[0] != "" || segments[1] != "argon2id" {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(segments[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, nil, ErrUnsupportedHashVersion
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(segments[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if params.MemoryKiB == 0 || params.MemoryKiB > maxVerifyMemoryKiB {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if params.Iterations == 0 || params.Iterations > maxVerifyIterations {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if params.Parallelism == 0 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(segments[4])
	if err != nil || len(salt) == 0 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(segments[5])
	if err != nil || len(key) == 0 || len(key) > maxVerifyKeyLength {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	return params, salt, key, nil
}
