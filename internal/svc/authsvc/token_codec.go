package authsvc

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// ErrInvalidClaims is returned by Encode for claims that cannot form a valid token.
// It signals a caller bug, not bad client input.
var ErrInvalidClaims = errors.New("invalid token claims")

// Codec turns Claims into a signed token string and back.
// Implementations never look at the clock: expiry is the caller's concern.
type Codec interface {
	// Encode signs claims into a compact token string.
	Encode(claims domain.Claims) (string, error)

	// Decode verifies the token signature and returns its claims.
	// Fails with domain.ErrTokenInvalidSignature or domain.ErrTokenMalformed.
	Decode(token string) (domain.Claims, error)
}

// jwtClaims is the JSON payload of a token.
type jwtClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTCodec implements Codec as an RS256-signed JWT.
// RSASSA-PKCS1-v1_5 is deterministic, so identical claims and key yield identical tokens.
type JWTCodec struct {
	signingKey *rsa.PrivateKey
	parser     *jwt.Parser
}

var _ Codec = (*JWTCodec)(nil)

// NewJWTCodec creates a codec signing with key and verifying with its public half.
func NewJWTCodec(key *rsa.PrivateKey) *JWTCodec {
	return &JWTCodec{
		signingKey: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
}

// Encode implements Codec.Encode.
func (c *JWTCodec) Encode(claims domain.Claims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}

	// NumericDate has one-second resolution; compare what will actually be encoded.
	if !claims.ExpiresAt.Truncate(jwt.TimePrecision).After(claims.IssuedAt.Truncate(jwt.TimePrecision)) {
		return "", fmt.Errorf("%w: expiry not after issue time", ErrInvalidClaims)
	}

	//nolint:exhaustruct
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwtClaims{
		Roles: claims.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// Decode implements Codec.Decode.
func (c *JWTCodec) Decode(tokenString string) (domain.Claims, error) {
	var parsed jwtClaims

	_, err := c.parser.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return &c.signingKey.PublicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return domain.Claims{}, errors.Join(domain.ErrTokenInvalidSignature, err)
		}

		return domain.Claims{}, errors.Join(domain.ErrTokenMalformed, err)
	}

	return claimsFromJWT(&parsed)
}

func claimsFromJWT(parsed *jwtClaims) (domain.Claims, error) {
	switch {
	case parsed.Subject == "":
		return domain.Claims{}, fmt.Errorf("%w: missing sub", domain.ErrTokenMalformed)
	case parsed.IssuedAt == nil:
		return domain.Claims{}, fmt.Errorf("%w: missing iat", domain.ErrTokenMalformed)
	case parsed.ExpiresAt == nil:
		return domain.Claims{}, fmt.Errorf("%w: missing exp", domain.ErrTokenMalformed)
	case parsed.Roles == nil:
		return domain.Claims{}, fmt.Errorf("%w: missing roles", domain.ErrTokenMalformed)
	case !parsed.ExpiresAt.After(parsed.IssuedAt.Time):
		return domain.Claims{}, fmt.Errorf("%w: exp not after iat", domain.ErrTokenMalformed)
	}

	roles, err := domain.ParseRoleSet(parsed.Roles)
	if err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err) //nolint:errorlint
	}

	return domain.Claims{
		Subject:   parsed.Subject,
		Roles:     roles,
		IssuedAt:  parsed.IssuedAt.Time,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}
