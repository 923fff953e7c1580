package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2idPrefix = "argon2id$"

// Upper bounds on parameters read back from a stored hash.
const (
	maxArgon2idMemory = 1024 * 1024 // KiB
	maxArgon2idTime   = 16
	maxArgon2idKeyLen = 1024
)

// Argon2idParams tunes the argon2id key derivation.
type Argon2idParams struct {
	Memory      uint32 // KiB
	Time        uint32 // iterations
	Parallelism uint8
	SaltLen     int
	KeyLen      uint32
}

// DefaultArgon2idParams follows the RFC 9106 second recommended option.
//
//nolint:gochecknoglobals
var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 1,
	SaltLen:     16,
	KeyLen:      32,
}

// Argon2idHasher implements Hasher with argon2id.
// Hashes are encoded as argon2id$m=<M>,t=<T>,p=<P>$<salt>$<key> so that
// parameters can change without invalidating stored hashes.
type Argon2idHasher struct {
	params Argon2idParams
}

var _ Hasher = (*Argon2idHasher)(nil)

// NewArgon2idHasher creates an argon2id hasher with the given parameters.
func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// Hash implements Hasher.Hash.
func (h *Argon2idHasher) Hash(plain string) (string, error) {
	p := h.params

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)

	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix,
		p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify implements Hasher.Verify.
func (h *Argon2idHasher) Verify(plain, hash string) bool {
	encoded, ok := strings.CutPrefix(hash, argon2idPrefix)
	if !ok {
		return false
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 3 {
		return false
	}

	var (
		memory, iterations uint32
		parallelism        uint8
	)

	if _, err := fmt.Sscanf(parts[0], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(want) == 0 || len(want) > maxArgon2idKeyLen {
		return false
	}

	if !validArgon2idParams(memory, iterations, parallelism) || len(salt) == 0 {
		return false
	}

	//nolint:gosec
	got := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1
}

func validArgon2idParams(memory, iterations uint32, parallelism uint8) bool {
	return parallelism > 0 &&
		iterations > 0 && iterations <= maxArgon2idTime &&
		memory >= 8*uint32(parallelism) && memory <= maxArgon2idMemory
}
