package authsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// SeedFile lists accounts to create at startup.
//
//	accounts:
//	  - username: admin
//	    password: admin
//	    email: admin@example.com
//	    roles: [ADMIN]
type SeedFile struct {
	Accounts []domain.SignupRequest `yaml:"accounts"`
}

// DecodeSeedFile parses a YAML seed document. Unknown fields are rejected.
func DecodeSeedFile(r io.Reader) (SeedFile, error) {
	var seed SeedFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return SeedFile{}, fmt.Errorf("decode seed file: %w", err)
	}

	return seed, nil
}

// LoadSeedFile reads and parses the seed file at path.
func LoadSeedFile(path string) (SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedFile{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	return DecodeSeedFile(f)
}

// Seed signs up every account of the seed file, skipping usernames that already exist.
// Returns the number of accounts created.
func (s *AccountService) Seed(ctx context.Context, seed SeedFile) (int, error) {
	created := 0

	for _, req := range seed.Accounts {
		if _, err := s.Signup(ctx, req); err != nil {
			if errors.Is(err, domain.ErrDuplicateUsername) {
				continue
			}

			return created, fmt.Errorf("seed %q: %w", req.Username, err)
		}

		created++
	}

	s.log.InfoContext(ctx, "accounts seeded", "created", created, "total", len(seed.Accounts))

	return created, nil
}
