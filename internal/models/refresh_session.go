package models

import (
	"time"

	"github.com/google/uuid"
)

// UnknownUserAgent подставляется, если клиент не прислал User-Agent.
const UnknownUserAgent = "unknown"

// ClientMeta — данные клиента, с которого выпущена сессия.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// Normalize возвращает копию с заполненным User-Agent.
func (m ClientMeta) Normalize() ClientMeta {
	if m.UserAgent == "" {
		m.UserAgent = UnknownUserAgent
	}

	return m
}

// RefreshSession — запись об одном действующем refresh-токене.
// Хранится только хэш токена (TokenHash), сырой токен не сохраняется никогда.
type RefreshSession struct {
	ID         uuid.UUID
	TokenHash  string
	UserID     uuid.UUID
	ExpiresAt  time.Time
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Expired сообщает, истёк ли срок действия записи на момент now.
func (s *RefreshSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SessionSummary — представление сессии для владельца.
type SessionSummary struct {
	ID         uuid.UUID `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Summary строит представление сессии без хэша токена.
func (s *RefreshSession) Summary() SessionSummary {
	return SessionSummary{
		ID:         s.ID,
		IPAddress:  s.IPAddress,
		UserAgent:  s.UserAgent,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
	}
}
