package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. MONETA_HTTP_ADDR.
const EnvPrefix = "MONETA"

// MinSecretBytes is the HS512 key size: 512 bits.
const MinSecretBytes = 64

var (
	ErrMissingSecret = errors.New("config: JWT_SECRET is required")
	ErrWeakSecret    = fmt.Errorf("config: JWT_SECRET must be at least %d bytes", MinSecretBytes)
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
	PGDSN    string `mapstructure:"pg_dsn"`

	JWTSecret string `mapstructure:"jwt_secret"`
	JWTTTLMs  int64  `mapstructure:"jwt_ttl_ms"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`

	PasswordHasher string `mapstructure:"password_hasher"`

	RateLimitRPS   int   `mapstructure:"rate_limit_rps"`
	RateLimitBurst int   `mapstructure:"rate_limit_burst"`
	MaxBodyBytes   int64 `mapstructure:"max_body_bytes"`

	MailFrom          string `mapstructure:"mail_from"`
	BudgetWarnPercent int    `mapstructure:"budget_warn_percent"`

	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

var defaults = map[string]any{
	"http_addr":           ":8080",
	"grpc_addr":           ":9090",
	"pg_dsn":              "",
	"jwt_secret":          "",
	"jwt_ttl_ms":          int64(3600000),
	"redis_addr":          "",
	"redis_db":            0,
	"redis_password":      "",
	"password_hasher":     "bcrypt",
	"rate_limit_rps":      20,
	"rate_limit_burst":    40,
	"max_body_bytes":      int64(1 << 20),
	"mail_from":           "no-reply@moneta.local",
	"budget_warn_percent": 80,
	"admin_email":         "",
	"admin_password":      "",
}

// Load reads an optional .env file from the working directory, then the
// process environment, and validates the result.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an error.
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, def := range defaults {
		v.SetDefault(k, def)
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.PasswordHasher = strings.ToLower(strings.TrimSpace(cfg.PasswordHasher))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return ErrMissingSecret
	case len(c.JWTSecret) < MinSecretBytes:
		return ErrWeakSecret
	case c.JWTTTLMs <= 0:
		return errors.New("config: JWT_TTL_MS must be positive")
	case c.PasswordHasher != "bcrypt" && c.PasswordHasher != "argon2id":
		return fmt.Errorf("config: unknown PASSWORD_HASHER %q", c.PasswordHasher)
	case c.BudgetWarnPercent <= 0 || c.BudgetWarnPercent > 100:
		return errors.New("config: BUDGET_WARN_PERCENT must be within 1..100")
	case c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0:
		return errors.New("config: rate limit values must be positive")
	}
	return nil
}

// TokenTTL is the session token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWTTTLMs) * time.Millisecond
}

// String masks credentials so the config can be logged at startup.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  HTTPAddr: %s\n", c.HTTPAddr)
	fmt.Fprintf(&sb, "  GRPCAddr: %s\n", c.GRPCAddr)
	fmt.Fprintf(&sb, "  PostgreSQL: %s\n", enabled(c.PGDSN != ""))
	fmt.Fprintf(&sb, "  Redis: %s\n", orDefault(c.RedisAddr, "(in-memory token cache)"))
	fmt.Fprintf(&sb, "  TokenTTL: %s\n", c.TokenTTL())
	fmt.Fprintf(&sb, "  PasswordHasher: %s\n", c.PasswordHasher)
	fmt.Fprintf(&sb, "  RateLimit: %d rps, burst %d\n", c.RateLimitRPS, c.RateLimitBurst)
	fmt.Fprintf(&sb, "  BudgetWarnPercent: %d\n", c.BudgetWarnPercent)
	sb.WriteString("  JWTSecret: ********\n")
	if c.RedisPassword != "" {
		sb.WriteString("  RedisPassword: ********\n")
	}
	return sb.String()
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled (in-memory repositories)"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
