// service содержит бизнес-логику жизненного цикла сессий:
// регистрацию и вход, выпуск пары токенов, ротацию refresh-токенов
// с обнаружением повторного использования, перечисление и отзыв сессий.
//
// Основные аспекты:
//   - Service не хранит состояние между вызовами; всё изменяемое состояние
//     лежит в storage.Storage. Экземпляр безопасен для конкурентного
//     использования, если потокобезопасно хранилище.
//   - Погашение старой refresh-сессии и сохранение новой выполняются одной
//     атомарной операцией хранилища (RotateRefreshSession).
//   - Ошибки возвращаются обёрнутыми (op + %w) и маппятся транспортом
//     на HTTP-статусы (см. комментарии к переменным ошибок ниже).
package service

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/auth-sessions/internal/config"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/token"
)

var (
	// ErrInvalidCredentials — пара email/пароль неверна или пользователь не найден.
	// Причина наружу не раскрывается. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен некорректен по формату/подписи, просрочен
	// или его владелец больше не существует. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingToken — refresh-токен не передан. HTTP 410.
	ErrMissingToken = errors.New("refresh token is missing")

	// ErrReuseDetected — предъявлен уже погашенный refresh-токен.
	// Все сессии пользователя к этому моменту отозваны. HTTP 401.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrUnauthorized — access-токен отсутствует, недействителен
	// или пользователь удалён. HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmailTaken — e-mail уже занят другим пользователем. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrSessionNotFound — сессии нет или она принадлежит другому пользователю. HTTP 404.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUserNotFound — пользователь не найден. HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrRefreshTokenCollision — исчерпаны попытки выпустить refresh-токен
	// с уникальным хэшем. HTTP 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInvalidEmail — e-mail пустой или имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrPasswordTooLong — пароль длиннее 72 байт (предел bcrypt). HTTP 400.
	ErrPasswordTooLong = errors.New("password is too long")
)

// EventRecorder принимает события жизненного цикла для метрик.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Service описывает бизнес-логику сервиса сессий.
type Service struct {
	storage   storage.Storage
	keys      *token.Keyring
	cfg       config.AuthConfig
	metrics   EventRecorder
	now       func() time.Time
	dummyHash []byte
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени (и для кодеков токенов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New создаёт новый экземпляр Service.
// Некорректная конфигурация кодеков или bcrypt означает ошибку запуска.
func New(st storage.Storage, cfg config.AuthConfig, opts ...Option) (*Service, error) {
	const op = "service.New"

	s := &Service{
		storage: st,
		cfg:     cfg,
		metrics: nopRecorder{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.BcryptCost == 0 {
		s.cfg.BcryptCost = bcrypt.DefaultCost
	}

	keys, err := token.NewKeyring(
		cfg.AccessSecret, cfg.AccessTokenTTL,
		cfg.RefreshSecret, cfg.RefreshTokenTTL,
		token.WithIssuer(cfg.Issuer),
		token.WithAudience(cfg.Audience...),
		token.WithClock(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.keys = keys

	// Хэш-заглушка для сравнения при неизвестном email: время ответа не
	// должно выдавать, существует ли пользователь.
	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-password"), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%s: bcrypt cost %d: %w", op, s.cfg.BcryptCost, err)
	}
	s.dummyHash = dummy

	return s, nil
}

// SetMetrics устанавливает получателя событий (опционально).
func (s *Service) SetMetrics(r EventRecorder) {
	if r == nil {
		r = nopRecorder{}
	}

	s.metrics = r
}

// AccessTTL возвращает срок жизни access-токена.
func (s *Service) AccessTTL() time.Duration { return s.keys.Access.TTL() }

// RefreshTTL возвращает срок жизни refresh-токена и сессии.
func (s *Service) RefreshTTL() time.Duration { return s.keys.Refresh.TTL() }
