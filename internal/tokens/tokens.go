package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrExpiredToken   = errors.New("token expired")
	ErrTypeMismatch   = errors.New("invalid token type")
	ErrMalformedToken = errors.New("invalid token")
	ErrMissingSubject = errors.New("token subject is required")
)

// Claims is the payload carried by both access and refresh tokens.
// Type distinguishes the two so one can never stand in for the other.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a single shared secret.
type Codec struct {
	Secret        []byte
	AccessExpire  time.Duration
	RefreshExpire time.Duration
}

func (c *Codec) lifetime(tokenType string) time.Duration {
	if tokenType == TypeRefresh {
		return c.RefreshExpire
	}
	return c.AccessExpire
}

func (c *Codec) Issue(userID, username, role, tokenType string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := time.Now()
	exp := now.Add(c.lifetime(tokenType))
	claims := Claims{
		Username: username,
		Role:     role,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *Codec) Decode(tokenStr, expectedType string) (*Claims, error) {
	var claims Claims
	tkn, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrMalformedToken
		}
		return c.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrMalformedToken
	}
	if !tkn.Valid {
		return nil, ErrMalformedToken
	}
	if claims.Type != expectedType {
		return nil, ErrTypeMismatch
	}
	return &claims, nil
}
