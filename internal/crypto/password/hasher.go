// Package password provides one-way salted password hashing.
package password

import (
	"errors"
	"fmt"
)

// ErrUnknownAlgorithm is returned by New for an unsupported algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

// Algorithm names accepted by New.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Hasher hashes passwords and verifies them against stored hashes.
type Hasher interface {
	// Hash returns an encoded salted hash of plain.
	Hash(plain string) (string, error)

	// Verify reports whether plain matches the encoded hash.
	// A malformed hash never matches.
	Verify(plain, hash string) bool
}

// HasherConfig selects and tunes the password hash algorithm.
type HasherConfig struct {
	// Algorithm is "bcrypt" or "argon2id"
	Algorithm string `env:"PASSWORD_HASHER" default:"bcrypt"`

	// BcryptCost is the bcrypt work factor, 0 selects the library default
	BcryptCost int `env:"BCRYPT_COST" default:"0"`
}

// New builds the Hasher selected by cfg.
func New(cfg HasherConfig) (Hasher, error) {
	switch cfg.Algorithm {
	case AlgorithmBcrypt:
		return NewBcryptHasher(cfg.BcryptCost), nil
	case AlgorithmArgon2id:
		return NewArgon2idHasher(DefaultArgon2idParams), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
}
