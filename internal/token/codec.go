package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims — полезная нагрузка токена.
// Email заполняется только в access-токене, ID (jti) только в refresh.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID разбирает subject как UUID пользователя.
func (c *Claims) UserID() (uuid.UUID, error) {
	uid, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token.Claims.UserID: %w", ErrInvalid)
	}

	return uid, nil
}

// Codec подписывает и проверяет токены одного вида.
type Codec struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience []string
	leeway   time.Duration
	clock    func() time.Time
}

// Option настраивает Codec.
type Option func(*Codec)

// WithIssuer задаёт iss, который проставляется и проверяется.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// WithAudience задаёт aud, который проставляется и проверяется.
func WithAudience(aud ...string) Option {
	return func(c *Codec) { c.audience = append([]string(nil), aud...) }
}

// WithLeeway задаёт допуск на рассинхронизацию часов при проверке exp/iat.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithClock подменяет источник времени для проверки (тесты).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.clock = now }
}

// NewCodec создаёт Codec. Пустой секрет и неположительный TTL являются ошибками
// конфигурации, которые должны останавливать старт сервиса.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	const op = "token.NewCodec"

	if secret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	if ttl <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTTL)
	}

	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// TTL возвращает срок жизни выпускаемых токенов.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Sign подписывает claims. iat/exp/iss/aud проставляются здесь и
// перезаписывают переданные значения. Возвращает токен и момент истечения.
func (c *Codec) Sign(claims Claims, now time.Time) (string, time.Time, error) {
	const op = "token.Codec.Sign"

	expiresAt := now.Add(c.ttl)

	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.Issuer = c.issuer
	if len(c.audience) > 0 {
		claims.Audience = jwt.ClaimStrings(c.audience)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, expiresAt, nil
}

// Verify проверяет подпись, алгоритм, срок действия и обязательные поля.
func (c *Codec) Verify(raw string) (*Claims, error) {
	const op = "token.Codec.Verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.clock),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		opts = append(opts, jwt.WithAudience(c.audience...))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalid)
	}

	return claims, nil
}
