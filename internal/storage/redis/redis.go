// Package redis хранит refresh-сессии в Redis.
//
// Раскладка ключей (prefix по умолчанию "auth:rt:"):
//
//	<prefix>s:<hash>  HASH  запись сессии (id, uid, exp, ip, ua, ca, lu), время в unix ms
//	<prefix>id:<sid>  STRING  hash токена по ID сессии
//	<prefix>u:<uid>   ZSET  хэши токенов пользователя, score = lu
//	<prefix>exp       ZSET  все хэши, score = exp
//
// Запись живёт в Redis ещё retention после exp, чтобы ротация могла отличить
// просроченный токен от неизвестного. Изменяющие операции выполняются
// Lua-скриптами и атомарны.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/auth-sessions/internal/storage"
)

const (
	defaultPrefix    = "auth:rt:"
	defaultRetention = time.Hour
)

type Storage struct {
	rdb       *goredis.Client
	prefix    string
	retention time.Duration
}

// Option настраивает Storage.
type Option func(*Storage)

// WithPrefix задаёт префикс ключей. Пустой префикс игнорируется.
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention задаёт, сколько запись хранится после истечения срока.
func WithRetention(d time.Duration) Option {
	return func(s *Storage) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0)
// и проверяет соединение.
func New(ctx context.Context, redisURL string, opts ...Option) (*Storage, error) {
	const op = "storage.redis.New"

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(rdb, opts...), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(rdb *goredis.Client, opts ...Option) *Storage {
	s := &Storage{
		rdb:       rdb,
		prefix:    defaultPrefix,
		retention: defaultRetention,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close закрывает клиент Redis.
func (s *Storage) Close() {
	_ = s.rdb.Close()
}

func (s *Storage) sessionKey(hash string) string { return s.prefix + "s:" + hash }
func (s *Storage) idKey(sid string) string       { return s.prefix + "id:" + sid }
func (s *Storage) userKey(uid string) string     { return s.prefix + "u:" + uid }
func (s *Storage) expiryKey() string             { return s.prefix + "exp" }

// Проверка на соответствие интерфейсу SessionStorage.
var _ storage.SessionStorage = (*Storage)(nil)
