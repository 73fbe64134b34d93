// Package token implements the JWT codec and the token lifecycle: issuing
// access/refresh pairs, verifying access tokens, and refreshing them
// against the single-slot refresh store.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openmatchmaking/auth/internal/apperr"
)

// Claims is the signed access-token payload. IssuedAt and ExpiresAt are
// stamped by the codec; UserID is the caller-supplied identity claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens under a shared HS256 secret. It
// is pure: encoding and decoding have no side effects.
type Codec struct {
	secret   []byte
	lifetime time.Duration
}

// NewCodec builds a Codec. lifetime bounds every issued token's validity
// window (exp = iat + lifetime).
func NewCodec(secret string, lifetime time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token codec requires a secret")
	}
	if lifetime == 0 {
		return nil, errors.New("token codec requires a lifetime")
	}
	return &Codec{secret: []byte(secret), lifetime: lifetime}, nil
}

// Encode signs a payload carrying the user id with iat=now and
// exp=now+lifetime.
func (c *Codec) Encode(userID string) (string, error) {
	return c.EncodeWithLifetime(userID, c.lifetime)
}

// EncodeWithLifetime signs a payload with an explicit validity window. A
// negative lifetime produces an already-expired token.
func (c *Codec) EncodeWithLifetime(userID string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the signature and the expiry (strict, no leeway) and
// returns the claims. Failures surface as TokenError.
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	return c.decode(tokenStr, true)
}

// DecodeExpired verifies the signature and shape but tolerates an elapsed
// expiry. The refresh flow uses it to recover the user id from the access
// token it is asked to renew.
func (c *Codec) DecodeExpired(tokenStr string) (*Claims, error) {
	return c.decode(tokenStr, false)
}

func (c *Codec) decode(tokenStr string, verifyExpiry bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if !verifyExpiry {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindToken, err.Error(), err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, apperr.Token("token is missing its claims")
	}
	if !verifyExpiry && claims.ExpiresAt == nil {
		return nil, apperr.Token("token has no expiration claim")
	}
	return claims, nil
}

// NewRefreshToken draws an opaque refresh token of the given character
// length from the hex charset. Minimum 32 characters (128 bits from
// crypto/rand), well above the 48-bit entropy floor.
func NewRefreshToken(length int) (string, error) {
	if length < 32 {
		length = 32
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}
