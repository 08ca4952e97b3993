package security

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	domainauth "campustrade/internal/domain/auth"
)

const issuer = "campustrade"

type tokenClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTCodec signs and verifies HS256 bearer tokens.
type JWTCodec struct {
	secret []byte
}

func NewJWTCodec(secret string) (*JWTCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("security: jwt secret must be at least 16 bytes")
	}
	return &JWTCodec{secret: []byte(secret)}, nil
}

func (c *JWTCodec) Sign(claims domainauth.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		UserID: claims.UserID,
		Name:   claims.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign failed: %w", err)
	}
	return signed, nil
}

func (c *JWTCodec) Verify(raw string) (domainauth.Claims, error) {
	if raw == "" {
		return domainauth.Claims{}, domainauth.ErrTokenRequired
	}
	parsed := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, parsed, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domainauth.Claims{}, domainauth.ErrTokenExpired
		}
		return domainauth.Claims{}, fmt.Errorf("%w: %v", domainauth.ErrTokenInvalid, err)
	}
	if !token.Valid || parsed.UserID == "" {
		return domainauth.Claims{}, domainauth.ErrTokenInvalid
	}
	claims := domainauth.Claims{UserID: parsed.UserID, Name: parsed.Name}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
