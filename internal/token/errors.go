package token

import "errors"

var (
	// ErrExpired — подпись верна, но срок действия токена истёк.
	ErrExpired = errors.New("token expired")
	// ErrInvalid — подпись не сходится, структура повреждена или не совпали
	// обязательные поля (alg/iss/aud/sub).
	ErrInvalid = errors.New("token invalid")

	// ErrEmptySecret — секрет подписи не задан (ошибка конфигурации на старте).
	ErrEmptySecret = errors.New("signing secret is empty")
	// ErrInvalidTTL — срок жизни токена должен быть положительным.
	ErrInvalidTTL = errors.New("token ttl must be positive")
	// ErrSharedSecret — access и refresh используют один и тот же секрет.
	ErrSharedSecret = errors.New("access and refresh secrets must differ")
)
