package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Keyring — пара кодеков с раздельными секретами.
type Keyring struct {
	Access  *Codec
	Refresh *Codec
}

// NewKeyring создаёт кодеки access/refresh. Совпадающие секреты запрещены.
func NewKeyring(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration, opts ...Option) (*Keyring, error) {
	const op = "token.NewKeyring"

	if accessSecret != "" && accessSecret == refreshSecret {
		return nil, fmt.Errorf("%s: %w", op, ErrSharedSecret)
	}

	access, err := NewCodec(accessSecret, accessTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: access: %w", op, err)
	}

	refresh, err := NewCodec(refreshSecret, refreshTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: refresh: %w", op, err)
	}

	return &Keyring{Access: access, Refresh: refresh}, nil
}

// HashRefresh вычисляет ключ записи refresh-сессии: sha256 → hex (64 символа).
// Быстрый дайджест достаточен: токен сам по себе подписан и содержит
// случайный jti.
func HashRefresh(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewNonce возвращает 16 случайных байт в hex, значение jti.
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token.NewNonce: %w", err)
	}

	return hex.EncodeToString(b), nil
}
