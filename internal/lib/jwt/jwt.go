package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ayosleepy/polls/internal/entity"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims are the fields carried by both token types.
type Claims struct {
	UserID int64
	Email  string
	Type   string
}

func NewTokenPair(user entity.User, secret string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	accessToken, err := newToken(user, secret, TypeAccess, accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := newToken(user, secret, TypeRefresh, refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// newToken signs an HS256 token. Every token gets its own jti so two tokens
// issued within the same second never collide in storage.
func newToken(user entity.User, secret, typ string, ttl time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)

	claims["uid"] = user.ID
	claims["email"] = user.Email
	claims["typ"] = typ
	claims["jti"] = uuid.NewString()
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString([]byte(secret))
}

// Parse verifies the signature and expiry of raw and checks that it is of the
// expected type.
func Parse(raw, secret, expectedType string) (Claims, error) {
	token, err := jwt.ParseWithClaims(raw, jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	if typ, _ := claims["typ"].(string); typ != expectedType {
		return Claims{}, fmt.Errorf("%w: expected %s token, got %v", ErrInvalidToken, expectedType, claims["typ"])
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return Claims{}, fmt.Errorf("%w: uid claim missing or invalid", ErrInvalidToken)
	}

	email, ok := claims["email"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: email claim missing or invalid", ErrInvalidToken)
	}

	return Claims{UserID: int64(uid), Email: email, Type: expectedType}, nil
}
