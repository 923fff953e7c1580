package domain

import (
	"errors"
)

var (
	// ErrDuplicateUsername is returned when signing up with a username that is already taken.
	ErrDuplicateUsername = errors.New("username is already in use")
	// ErrAccountNotFound is returned when looking up a non-existent account.
	ErrAccountNotFound = errors.New("the user doesn't exist")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	// It never tells which of the two was wrong.
	ErrInvalidCredentials = errors.New("invalid username/password supplied")
	// ErrInvalidInput is returned when a request is missing required fields.
	ErrInvalidInput = errors.New("invalid input")
)

// Account is a persisted user record as held by the credential store.
type Account struct {
	ID           string  // Unique identifier (UUID)
	Username     string  // Login name, unique and case-sensitive
	Email        string  // Contact address, optional
	PasswordHash string  // Encoded password hash
	Roles        RoleSet // Assigned roles, at least one
	CreatedAt    int64   // Unix timestamp of account creation
}

// AccountResponse is the public projection of an Account.
type AccountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Roles    []Role `json:"roles"`
}

// Response projects the account onto its public representation.
func (a *Account) Response() AccountResponse {
	return AccountResponse{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Roles:    a.Roles.Slice(),
	}
}

// SignupRequest carries the fields of a new account.
type SignupRequest struct {
	Username string   `json:"username" yaml:"username"`
	Email    string   `json:"email"    yaml:"email"`
	Password string   `json:"password" yaml:"password"`
	Roles    []string `json:"roles"    yaml:"roles"`
}

// SigninRequest carries a username/password pair.
type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
