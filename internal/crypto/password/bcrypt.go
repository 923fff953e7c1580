package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// maxBcryptPasswordLen is the longest input bcrypt accepts.
const maxBcryptPasswordLen = 72

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

var _ Hasher = (*BcryptHasher)(nil)

// NewBcryptHasher creates a bcrypt hasher; a non-positive cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}

	return &BcryptHasher{cost: cost}
}

// Hash implements Hasher.Hash.
// Passwords longer than 72 bytes fail with domain.ErrInvalidInput.
func (h *BcryptHasher) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: password longer than %d bytes", domain.ErrInvalidInput, maxBcryptPasswordLen)
	} else if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}

	return string(hashed), nil
}

// Verify implements Hasher.Verify.
func (h *BcryptHasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
