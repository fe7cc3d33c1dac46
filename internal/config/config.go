package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// DefaultSessionSecret is the development fallback. Production refuses it.
const DefaultSessionSecret = "dev-session-secret-change"

// ErrInsecureSecret is returned by Validate when production runs on the
// development session secret.
var ErrInsecureSecret = errors.New("config: SESSION_SECRET must be set in production")

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	APIURL          string
	AuthURL         string
	APITimeout      time.Duration
	SessionSecret   string
	CSRFSecret      string
	SessionMaxAge   time.Duration
	SecureCookies   bool
	JWTVerifyKey    string
	CacheBackend    string
	CacheTTL        time.Duration
	RedisAddr       string
	RateLimitPerMin int
	CORSOrigins     []string
	LogLevel        string
	DefaultPageSize int
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Validate rejects settings the process must not start with.
func (a App) Validate() error {
	if a.Production() && (a.SessionSecret == "" || a.SessionSecret == DefaultSessionSecret) {
		return ErrInsecureSecret
	}
	return nil
}

// SessionKeys derives the cookie signing and encryption keys from the
// session secret. Both are 32 bytes.
func (a App) SessionKeys() (authKey, encKey []byte) {
	return deriveKey(a.SessionSecret, "schooladmin session auth"), deriveKey(a.SessionSecret, "schooladmin session enc")
}

// CSRFKey returns the 32-byte key for CSRF cookies, derived from CSRF_SECRET
// or, when unset, from the session secret.
func (a App) CSRFKey() []byte {
	if a.CSRFSecret != "" {
		return deriveKey(a.CSRFSecret, "schooladmin csrf")
	}
	return deriveKey(a.SessionSecret, "schooladmin csrf")
}

func deriveKey(secret, info string) []byte {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		panic(fmt.Sprintf("config: derive key: %v", err))
	}
	return key
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is applied first when it exists.
func Load() App {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	env := getEnv("APP_ENV", "dev")
	return App{
		Env:             env,
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		APIURL:          strings.TrimRight(getEnv("API_URL", "http://127.0.0.1:8005/api/v1"), "/"),
		AuthURL:         strings.TrimRight(getEnv("AUTH_URL", "http://127.0.0.1:8005/api"), "/"),
		APITimeout:      durationEnv("API_TIMEOUT", 30*time.Second),
		SessionSecret:   getEnv("SESSION_SECRET", DefaultSessionSecret),
		CSRFSecret:      getEnv("CSRF_SECRET", ""),
		SessionMaxAge:   durationEnv("SESSION_MAX_AGE", 7*24*time.Hour),
		SecureCookies:   boolEnv("SESSION_SECURE", env == "production" || env == "prod"),
		JWTVerifyKey:    getEnv("JWT_VERIFY_KEY", ""),
		CacheBackend:    getEnv("CACHE_BACKEND", "memory"),
		CacheTTL:        durationEnv("CACHE_TTL", 30*time.Second),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 300),
		CORSOrigins:     listEnv("CORS_ORIGINS"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DefaultPageSize: intEnv("DEFAULT_PAGE_SIZE", 10),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
