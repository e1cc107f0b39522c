// Package authn inspects the bearer credential held by the storefront session.
// Signatures are verified by the backend; the client only reads claims.
package authn

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// JWT errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims represents the claims the storefront backend puts in access tokens
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants back-office transitions
func (c *Claims) IsAdmin() bool {
	return strings.EqualFold(c.Role, RoleAdmin)
}

// ExpiresAtTime returns the expiry, or the zero time when the token has none
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the claims are past their expiry at now
func (c *Claims) Expired(now time.Time) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && !now.Before(exp)
}

var parser = jwt.NewParser()

// ParseClaims decodes the token payload without verifying the signature.
// A token without an email claim is rejected since orders are keyed by it.
func ParseClaims(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// IsTokenExpired checks if a token is expired. Unparseable tokens count as expired.
func IsTokenExpired(tokenString string) bool {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return true
	}
	return claims.Expired(time.Now().UTC())
}

// GetTokenExpirationTime returns the expiration time of a token
func GetTokenExpirationTime(tokenString string) (time.Time, error) {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	exp := claims.ExpiresAtTime()
	if exp.IsZero() {
		return time.Time{}, ErrInvalidClaims
	}
	return exp, nil
}
