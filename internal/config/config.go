// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "VILLAGE_"

type Config struct {
	Env       string
	Port      string
	BaseURL   string
	LogLevel  string
	LogFormat string

	DBPath string

	// TrustedProxies lists peers whose forwarding headers name the client.
	TrustedProxies []netip.Prefix

	Auth      AuthConfig
	Email     EmailConfig
	Push      PushConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
}

type AuthConfig struct {
	JWTSecret      string
	SessionTTL     time.Duration
	AccessTokenTTL time.Duration
	CookieSecure   bool
}

type EmailConfig struct {
	PostmarkToken string
	FromAddress   string
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

type StorageConfig struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type SchedulerConfig struct {
	DigestSpec   string
	TickSpec     string
	CleanupAfter time.Duration
}

// Load reads configuration from the environment. When envFile is non-empty
// and exists it is loaded first; variables already set win.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Env:       getEnv("ENV", "production"),
		Port:      port,
		BaseURL:   strings.TrimRight(getEnv("BASE_URL", "http://localhost:"+port), "/"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		DBPath:    getEnv("DB_PATH", "village.db"),
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			SessionTTL:     getEnvDuration("SESSION_TTL", 30*24*time.Hour),
			AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		},
		Email: EmailConfig{
			PostmarkToken: getEnv("POSTMARK_TOKEN", ""),
			FromAddress:   getEnv("FROM_EMAIL", ""),
		},
		Push: PushConfig{
			VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
			VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
			Subject:         getEnv("VAPID_SUBJECT", ""),
		},
		Storage: StorageConfig{
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("S3_REGION", "auto"),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			PublicBaseURL: strings.TrimRight(getEnv("S3_PUBLIC_URL", ""), "/"),
		},
		Scheduler: SchedulerConfig{
			DigestSpec:   getEnv("DIGEST_CRON", "0 * * * *"),
			TickSpec:     getEnv("TICK_CRON", "* * * * *"),
			CleanupAfter: getEnvDuration("NOTIFICATION_LOG_RETENTION", 7*24*time.Hour),
		},
	}
	cfg.Auth.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	proxies, err := parsePrefixes(getEnv("TRUSTED_PROXIES", ""))
	if err != nil {
		return nil, fmt.Errorf("VILLAGE_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	if cfg.Auth.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("VILLAGE_JWT_SECRET is required outside development")
		}
		cfg.Auth.JWTSecret = "development-only-secret"
	}
	if cfg.Push.Subject == "" {
		cfg.Push.Subject = cfg.BaseURL
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// EmailEnabled reports whether outbound email is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.PostmarkToken != "" && c.Email.FromAddress != ""
}

// StorageEnabled reports whether avatar uploads have a bucket to go to.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Bucket != "" && c.Storage.AccessKey != "" && c.Storage.SecretKey != ""
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "env=%s port=%s base_url=%s db=%s log_level=%s", c.Env, c.Port, c.BaseURL, c.DBPath, c.LogLevel)
	fmt.Fprintf(&b, " jwt_secret=%s postmark_token=%s", mask(c.Auth.JWTSecret), mask(c.Email.PostmarkToken))
	fmt.Fprintf(&b, " vapid_private_key=%s s3_bucket=%s s3_secret_key=%s", mask(c.Push.VAPIDPrivateKey), c.Storage.Bucket, mask(c.Storage.SecretKey))
	fmt.Fprintf(&b, " digest=%q trusted_proxies=%v", c.Scheduler.DigestSpec, c.TrustedProxies)
	return b.String()
}

// parsePrefixes reads a comma-separated list of CIDRs or bare addresses.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			p, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", field, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", field, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func mask(s string) string {
	if s == "" {
		return "(unset)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getEnvDuration accepts Go durations ("15m") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n := getEnvInt(key, -1); n >= 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
