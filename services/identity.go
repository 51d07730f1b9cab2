package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityVerifier превращает токен запроса в id пользователя
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// JWTVerifier проверяет HS256 токены, id пользователя лежит в subject
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (string, error) {
	if raw == "" {
		return "", &Error{Kind: KindUnauthenticated, Msg: "token is missing"}
	}
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &Error{Kind: KindUnauthenticated, Msg: "token expired"}
		}
		return "", &Error{Kind: KindUnauthenticated, Msg: "invalid token"}
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || ValidateUserID(subject) != nil {
		return "", &Error{Kind: KindUnauthenticated, Msg: "token has no valid subject"}
	}
	return subject, nil
}

// Issue выпускает токен для userID. Используется командой token и в тестах
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
