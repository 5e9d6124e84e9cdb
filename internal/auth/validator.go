// Package auth validates bearer tokens and resolves credentials from
// incoming requests.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 5 * time.Minute

var (
	// ErrTokenRejected covers every verification failure: expired, bad
	// signature, wrong issuer or audience, malformed token.
	ErrTokenRejected = errors.New("token rejected")
	// ErrAppCodeMismatch is returned when the token's embedded application
	// code does not match the one supplied with the request.
	ErrAppCodeMismatch = errors.New("application code mismatch")
)

// Claims are the verified attributes extracted from a token. They are fixed
// for the lifetime of a connection.
type Claims struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Role     string `json:"role,omitempty"`
	AppCode  string `json:"appCode"`
	jwt.RegisteredClaims
}

// Validator verifies HS256 tokens against a configured key, issuer, and
// audience. Validation is pure; it never panics and never logs.
type Validator struct {
	key      []byte
	issuer   string
	audience string
}

// NewValidator builds a validator.
func NewValidator(key []byte, issuer, audience string) *Validator {
	return &Validator{key: key, issuer: issuer, audience: audience}
}

// Validate verifies the token and returns its claims. Any failure yields an
// error wrapping ErrTokenRejected.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.key, nil
	},
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return nil, ErrTokenRejected
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, fmt.Errorf("%w: missing user id claim", ErrTokenRejected)
	}
	return claims, nil
}

// ValidateForApplication verifies the token and requires its application
// code to match appCode. A token without an application code is rejected.
func (v *Validator) ValidateForApplication(tokenString, appCode string) (*Claims, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.AppCode) == "" {
		return nil, fmt.Errorf("%w: missing application code claim", ErrTokenRejected)
	}
	if !strings.EqualFold(claims.AppCode, appCode) {
		return nil, ErrAppCodeMismatch
	}
	return claims, nil
}

// Issue signs a token for the given identity. Used by the token endpoint and
// by tests.
func (v *Validator) Issue(userID, userName, role, appCode string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		UserName: userName,
		Role:     role,
		AppCode:  appCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.key)
}
