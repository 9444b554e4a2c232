package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configurations
type Config struct {
	DatabaseURL          string
	MigrationsPath       string
	Port                 string
	EncryptionKey        string // process-wide key the mailbox secrets are protected under
	MailHub              string // host:port of the outbound SMTP server
	SkipTLSVerify        bool
	AuthHeader           string // header carrying the authenticated operator's email
	DispatchWorkers      int
	SendTimeout          time.Duration
	AnalyticsDefaultDays int
}

// LoadConfig reads configuration from .env file and the process environment.
func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables directly.")
	}

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		MigrationsPath:       getenvDefault("MIGRATIONS_PATH", "database/migrations"),
		Port:                 getenvDefault("PORT", "8080"),
		EncryptionKey:        os.Getenv("ENCRYPTION_KEY"),
		MailHub:              getenvDefault("MAILHUB", "smtp.gmail.com:587"),
		SkipTLSVerify:        os.Getenv("SKIP_TLS_VERIFY") == "YES",
		AuthHeader:           getenvDefault("AUTH_HEADER", "X-Authenticated-Email"),
		DispatchWorkers:      getenvInt("DISPATCH_WORKERS", 1),
		SendTimeout:          time.Duration(getenvInt("SEND_TIMEOUT_SECONDS", 30)) * time.Second,
		AnalyticsDefaultDays: getenvInt("ANALYTICS_DEFAULT_DAYS", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	// Secrets protected under one key cannot be revealed under another, so
	// there is no built-in fallback key.
	if cfg.EncryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("%s not set or invalid, defaulting to %d", key, fallback)
		return fallback
	}
	return n
}
