package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   Server
	Postgres Postgres
	JWT      JWT
	Crypto   Crypto
	Logger   Logger
}

type Server struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type Postgres struct {
	DSN string
}

type JWT struct {
	Secret string
}

type Crypto struct {
	// MasterSecret seeds per-message key derivation. Changing it makes
	// every stored ciphertext undecryptable.
	MasterSecret string
}

type Logger struct {
	Level       string
	Development bool
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: Server{
			Port:            getEnv("SERVER_PORT", ":8080"),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		JWT: JWT{
			Secret: os.Getenv("JWT_SECRET"),
		},
		Crypto: Crypto{
			MasterSecret: os.Getenv("MESSAGE_MASTER_SECRET"),
		},
		Logger: Logger{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBool("LOG_DEVELOPMENT", false),
		},
	}

	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Crypto.MasterSecret == "" {
		return nil, fmt.Errorf("MESSAGE_MASTER_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
