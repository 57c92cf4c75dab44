package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/pribylovaa/auth-sessions/internal/models"
)

// Имена cookie с токенами.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// TokenTransport доставляет пару токенов клиенту и читает их из запроса.
type TokenTransport interface {
	StoreTokens(w http.ResponseWriter, pair *models.TokenPair)
	ClearTokens(w http.ResponseWriter)
	AccessToken(r *http.Request) string
	RefreshToken(r *http.Request) string
}

// CookieOptions — параметры cookie.
type CookieOptions struct {
	Domain      string
	Secure      bool
	SameSite    http.SameSite
	RefreshPath string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// CookieTransport хранит токены в HttpOnly cookie: access на пути "/",
// refresh только на RefreshPath, чтобы он не уходил с каждым запросом.
type CookieTransport struct {
	opts CookieOptions
}

var _ TokenTransport = (*CookieTransport)(nil)

// NewCookieTransport создаёт CookieTransport. Пустой RefreshPath заменяется на "/auth".
func NewCookieTransport(opts CookieOptions) *CookieTransport {
	if opts.RefreshPath == "" {
		opts.RefreshPath = "/auth"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	return &CookieTransport{opts: opts}
}

// StoreTokens выставляет обе cookie.
func (t *CookieTransport) StoreTokens(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, t.cookie(AccessCookie, pair.AccessToken, "/", t.opts.AccessTTL, pair.AccessExpiresAt))
	http.SetCookie(w, t.cookie(RefreshCookie, pair.RefreshToken, t.opts.RefreshPath, t.opts.RefreshTTL, pair.RefreshExpiresAt))
}

// ClearTokens удаляет обе cookie (Max-Age=0 в ответе).
func (t *CookieTransport) ClearTokens(w http.ResponseWriter) {
	for _, c := range []*http.Cookie{
		t.cookie(AccessCookie, "", "/", 0, time.Time{}),
		t.cookie(RefreshCookie, "", t.opts.RefreshPath, 0, time.Time{}),
	} {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

// AccessToken читает access-токен из cookie, иначе из Authorization: Bearer.
func (t *CookieTransport) AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}

	return bearerToken(r)
}

// RefreshToken читает refresh-токен из cookie.
func (t *CookieTransport) RefreshToken(r *http.Request) string {
	c, err := r.Cookie(RefreshCookie)
	if err != nil {
		return ""
	}

	return c.Value
}

func (t *CookieTransport) cookie(name, value, path string, ttl time.Duration, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   t.opts.Domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  expires,
		Secure:   t.opts.Secure,
		HttpOnly: true,
		SameSite: t.opts.SameSite,
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(auth[len(prefix):])
}
