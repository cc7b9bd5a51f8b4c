// Package auth issues and checks session tokens, hashes passwords and talks
// to GitHub for the optional OAuth sign-in.
//
// SESSION FLOW:
//  1. POST /api/auth/inscription or /api/auth/connexion verifies credentials
//  2. The server signs a JWT carrying {userId, email} and sets it in the
//     HttpOnly "token" cookie (7 days)
//  3. On later requests, RequireAuth/OptionalAuth read the cookie, validate
//     the JWT and put the Identity in the request context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"userId":"...","email":"...","sub":"...","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The server verifies the signature with the secret alone, no DB lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenExpiry = 7 * 24 * time.Hour
	DefaultIssuer      = "snipshare"
	minSecretLen       = 16
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Identity is who a valid token says the caller is.
type Identity struct {
	UserID string
	Email  string
}

// Claims is the JWT payload: the two application claims plus the registered
// ones (sub mirrors userId, exp, iat, iss).
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService signs and validates HS256 session tokens.
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// NewTokenService creates a TokenService. A zero expiry means
// DefaultTokenExpiry and an empty issuer means DefaultIssuer.
// Generate a secret with: openssl rand -hex 32
func NewTokenService(secret, issuer string, expiry time.Duration) (*TokenService, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", minSecretLen)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if expiry <= 0 {
		expiry = DefaultTokenExpiry
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, expiry: expiry}, nil
}

// Expiry is the lifetime of tokens issued by Generate. The session cookie
// uses the same value for its Max-Age.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Generate signs a token for the user with the configured lifetime.
func (s *TokenService) Generate(userID, email string) (string, error) {
	return s.GenerateWithDuration(userID, email, s.expiry)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to get an already expired token.
func (s *TokenService) GenerateWithDuration(userID, email string, d time.Duration) (string, error) {
	now := time.Now()

	c := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the identity it carries.
//
// The library checks the signature, the expiry (required) and the issuer.
// WithValidMethods pins HS256 so a token claiming "none" or an asymmetric
// algorithm is rejected before the key is even consulted.
func (s *TokenService) Validate(tokenStr string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: no userId claim", ErrTokenInvalid)
	}

	return &Identity{UserID: c.UserID, Email: c.Email}, nil
}
