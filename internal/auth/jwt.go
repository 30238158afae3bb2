package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cinescope/review-service/pkg/middleware"
)

// claims is the access-token claim set issued by the identity service.
type claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenValidator verifies access tokens issued by the identity service.
// This service never issues tokens of its own.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator creates a validator for the shared HMAC secret.
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// ValidateAccessToken parses and validates an access token, returning the
// authenticated identity for the request context.
func (v *TokenValidator) ValidateAccessToken(tokenString string) (*middleware.Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	parsed, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}
	if parsed.UserID == "" {
		return nil, fmt.Errorf("access token missing user id")
	}

	return &middleware.Claims{
		UserID: parsed.UserID,
		Email:  parsed.Email,
		Name:   parsed.Name,
		Avatar: parsed.Avatar,
		Role:   parsed.Role,
	}, nil
}
