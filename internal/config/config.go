package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration, loaded from the environment.
type Config struct {
	Service  Service
	Server   Server
	Database Database

	// PolicyFile is an optional YAML policy table; empty means built-in defaults.
	PolicyFile string

	// IdentityURL is the base URL of the identity service; empty selects the
	// static directory (development only).
	IdentityURL string

	JWTSigningKey string
	LogLevel      string
}

// Service identifies this deployment.
type Service struct {
	Name        string
	Version     string
	Environment string
}

// Server holds HTTP server settings.
type Server struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Database holds connection settings. An empty Host disables postgres and the
// service runs on the in-memory store.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// Load reads configuration from environment variables with development defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Service: Service{
			Name:        getEnv("SERVICE_NAME", "be-referrals"),
			Version:     getEnv("SERVICE_VERSION", "dev"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Server: Server{
			Port:            getEnvInt("PORT", 8086),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 120*time.Second),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: Database{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "referrals"),
			Password: os.Getenv("DB_PASSWORD"),
			Database: getEnv("DB_NAME", "referrals"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		PolicyFile:    os.Getenv("POLICY_FILE"),
		IdentityURL:   os.Getenv("IDENTITY_URL"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Service.Environment != "development" && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("JWT_SIGNING_KEY is required outside development")
	}
	if cfg.JWTSigningKey == "" {
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration or returns a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
