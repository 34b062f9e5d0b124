package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultIssuer = "rundird"

type Claims struct {
	UID int    `json:"uid"`
	Dir string `json:"dir"`
	jwt.RegisteredClaims
}

func NewRandomSecretB64(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Sign issues the capability token for one acquired lease. Leases have
// no expiry: a login session may legitimately outlive any TTL.
func Sign(secret []byte, uid int, dir, leaseID string) (string, error) {
	claims := Claims{
		UID: uid,
		Dir: dir,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   DefaultIssuer,
			ID:       leaseID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(secret)
}

func Verify(secret []byte, tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// LoadOrCreateSecret returns the signing secret stored at path, creating
// it 0600 on first use so separate open and close helper processes agree.
func LoadOrCreateSecret(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err == nil && len(b) >= 16 {
		return b, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	s, err := NewRandomSecretB64(32)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(s), 0600); err != nil {
		return nil, fmt.Errorf("persist secret: %w", err)
	}
	return []byte(s), nil
}
