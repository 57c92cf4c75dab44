// redact маскирует чувствительные данные для логов (e-mail, токены,
// пароли), оставляя полезный для отладки контекст.
package redact

import "strings"

// fingerprintLen — сколько символов хэша токена попадает в лог.
const fingerprintLen = 8

// Email маскирует e-mail для логирования.
//
// Правила:
//   - строка должна содержать ровно один '@', иначе "***";
//   - от локальной части остаются первые два символа (по рунам) + "***";
//     при длине ≤ 2 — только "***";
//   - домен возвращается без изменений.
//
// Примеры:
//
//	"foobar@example.com" -> "fo***@example.com"
//	"ab@ex.com"          -> "***@ex.com"
//	"no-at"              -> "***"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }

// Fingerprint возвращает короткий префикс хэша refresh-токена,
// по которому записи в логах можно сопоставить без раскрытия хэша целиком.
func Fingerprint(hash string) string {
	if len(hash) <= fingerprintLen {
		return "***"
	}

	return hash[:fingerprintLen] + "…"
}
