// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	SessionsRedis = "redis"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	Storage  StorageConfig `yaml:"storage"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Cookies  CookieConfig  `yaml:"cookies"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки HTTP-серверов (API и служебного).
type HTTPConfig struct {
	Host    string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port    string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	OpsPort string `yaml:"ops_port" env:"HTTP_OPS_PORT" env-default:"8081"`
}

// Addr возвращает адрес API в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// OpsAddr возвращает адрес служебного сервера (/livez, /healthz, /metrics).
func (h HTTPConfig) OpsAddr() string {
	return net.JoinHostPort(h.Host, h.OpsPort)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	Issuer          string        `yaml:"issuer" env:"ISSUER" env-default:"auth-service"`
	Audience        []string      `yaml:"audience" env:"AUDIENCE"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"30m"`
}

// StorageConfig выбирает реализацию хранилища.
// Driver — пользователи и сессии; Sessions = "redis" выносит сессии в Redis.
type StorageConfig struct {
	Driver       string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Sessions     string        `yaml:"sessions" env:"STORAGE_SESSIONS"`
	QueryTimeout time.Duration `yaml:"query_timeout" env:"STORAGE_QUERY_TIMEOUT" env-default:"3s"`
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
}

// RedisConfig — настройки подключения к Redis.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string `yaml:"prefix" env:"REDIS_PREFIX" env-default:"auth:rt:"`
	// Retention — сколько запись хранится после истечения срока.
	Retention time.Duration `yaml:"retention" env:"REDIS_RETENTION" env-default:"1h"`
}

// CookieConfig — параметры cookie с токенами.
// В окружении prod флаг Secure выставляется всегда (см. Config.SecureCookies).
type CookieConfig struct {
	Domain      string `yaml:"domain" env:"COOKIE_DOMAIN"`
	Secure      bool   `yaml:"secure" env:"COOKIE_SECURE"`
	SameSite    string `yaml:"same_site" env:"COOKIE_SAME_SITE" env-default:"lax"`
	RefreshPath string `yaml:"refresh_path" env:"COOKIE_REFRESH_PATH" env-default:"/auth"`
}

// SameSiteMode переводит строковое значение в http.SameSite.
// Неизвестное значение трактуется как lax.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SecureCookies сообщает, нужно ли выставлять cookie с флагом Secure.
func (c *Config) SecureCookies() bool {
	return c.Cookies.Secure || c.Env == "prod"
}

// Validate проверяет согласованность значений, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("auth: access_secret and refresh_secret are required"))
	} else if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth: access_secret and refresh_secret must differ"))
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("auth: token ttl must be positive"))
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("db: db_url is required for postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	switch c.Storage.Sessions {
	case "":
	case SessionsRedis:
		if c.Redis.RedisURL == "" {
			errs = append(errs, errors.New("redis: redis_url is required for redis sessions"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown sessions backend %q", c.Storage.Sessions))
	}

	return errors.Join(errs...)
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла поверх значений из YAML накладываются ENV-переменные.
// Результат проходит Validate.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file does not exist: %s", p)
			}

			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
