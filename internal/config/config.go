package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config carries everything the service reads from the environment.
type Config struct {
	Addr         string
	PGDSN        string
	AuthSecret   string
	TokenTTL     time.Duration
	BcryptCost   int
	ExposeErrors bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int

	MigrationsDir string
	SeedsDir      string
}

// Load reads configuration from the environment, honoring a .env file when
// present, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:          getEnv("CUENTAS_ADDR", ":8080"),
		PGDSN:         strings.TrimSpace(os.Getenv("CUENTAS_PG_DSN")),
		AuthSecret:    strings.TrimSpace(os.Getenv("CUENTAS_AUTH_SECRET")),
		TokenTTL:      getDuration("CUENTAS_TOKEN_TTL", time.Hour),
		BcryptCost:    getInt("CUENTAS_BCRYPT_COST", bcrypt.DefaultCost),
		ExposeErrors:  getBool("CUENTAS_EXPOSE_ERRORS", false),
		ReadTimeout:   getDuration("CUENTAS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:  getDuration("CUENTAS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:   getDuration("CUENTAS_IDLE_TIMEOUT", 60*time.Second),
		MaxBodyBytes:  getInt64("CUENTAS_MAX_BODY_BYTES", 1<<20),
		RateBurst:     getInt("CUENTAS_RATE_BURST", 20),
		RatePerSec:    getInt("CUENTAS_RATE_PER_SEC", 10),
		MigrationsDir: getEnv("CUENTAS_MIGRATIONS_DIR", "migrations"),
		SeedsDir:      getEnv("CUENTAS_SEEDS_DIR", "migrations/seeds"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("CUENTAS_AUTH_SECRET is required")
	}
	if c.Addr == "" {
		return fmt.Errorf("CUENTAS_ADDR cannot be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("CUENTAS_TOKEN_TTL must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("CUENTAS_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("CUENTAS_MAX_BODY_BYTES must be positive")
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
