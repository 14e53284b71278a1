package identity

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rapport-app/rapport/internal/config"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 bearer token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (any, error) {
			return []byte(config.Conf.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if config.Conf.JWTIssuer != "" {
		issuer, issErr := claims.GetIssuer()
		if issErr != nil || issuer != config.Conf.JWTIssuer {
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}
