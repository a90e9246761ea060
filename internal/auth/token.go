package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService handles JWT issuing and validation.
type TokenService struct {
	jwtSecret []byte
}

// NewTokenService creates a new token service.
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret cannot be empty")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
	}, nil
}

// NewToken creates a signed JWT for a profile.
func (s *TokenService) NewToken(profileID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": profileID.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(), // expires in 24h
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken checks the signature and validity of a token string.
func (s *TokenService) ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

// GetProfileIDFromToken extracts the 'sub' claim from a validated token.
func (s *TokenService) GetProfileIDFromToken(token *jwt.Token) (uuid.UUID, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("could not read token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("could not get 'sub' from token: %w", err)
	}

	profileID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token 'sub' is not a valid UUID: %w", err)
	}

	return profileID, nil
}
