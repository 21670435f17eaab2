package files

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TransferClaims authorise a single PUT of one object.
type TransferClaims struct {
	jwt.RegisteredClaims
	ContentType string `json:"ct"`
}

// TokenSigner issues and verifies transfer tokens embedded in upload URLs.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), now: time.Now}
}

// Sign returns a token that allows uploading objectKey until ttl elapses.
func (s *TokenSigner) Sign(objectKey, contentType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := TransferClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   objectKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ContentType: contentType,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign transfer token: %w", err)
	}
	return signed, nil
}

// Parse validates a transfer token and returns its claims.
func (s *TokenSigner) Parse(tokenString string) (*TransferClaims, error) {
	claims := &TransferClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid transfer token")
	}
	return claims, nil
}
