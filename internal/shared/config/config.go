package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	Privacy   PrivacyConfig
	Crisis    CrisisConfig
	Log       LogConfig
}

// CrisisConfig holds settings for the detection and response engine.
type CrisisConfig struct {
	// APIBaseURL is where the remote keyword override is fetched from
	// ({base}/config/crisis-keywords). Empty disables the remote fetch.
	APIBaseURL string
	// RemoteTimeout bounds the remote config fetch
	RemoteTimeout time.Duration
	// OverrideFile is an optional local YAML overlay, watched for changes
	OverrideFile string
	// DefaultCountry selects the resource catalog when a profile has none
	DefaultCountry string
	// StorageBackend: "memory", "redis" or "postgres"
	StorageBackend string
	// ActionTimeout bounds call/text/url open requests
	ActionTimeout time.Duration
	// LogTimeout bounds the asynchronous event write after a response is returned
	LogTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int
}

// PrivacyConfig holds keys used to protect persisted crisis events.
type PrivacyConfig struct {
	// EncryptionKey seals stored event lists (16, 24 or 32 bytes after decoding)
	EncryptionKey string
	// PseudonymKey is the HMAC key for replacing identifying user ids
	PseudonymKey string
	// FacilityCode scopes pseudonyms to a deployment
	FacilityCode string
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Enabled publishes anonymized crisis events to KurrentDB
	Enabled bool
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
	// ProviderRoles grants access to history, reports and follow-ups
	ProviderRoles []string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "crisis"),
			Password: getEnv("DB_PASSWORD", "crisis"),
			Database: getEnv("DB_NAME", "crisis"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			ProviderRoles: getEnvSlice("AUTH_PROVIDER_ROLES", []string{"clinician", "provider"}),
		},
		Privacy: PrivacyConfig{
			EncryptionKey: getEnv("PRIVACY_ENCRYPTION_KEY", "dev-encryption-key-32-bytes-long"),
			PseudonymKey:  getEnv("PRIVACY_PSEUDONYM_KEY", "dev-hmac-key-change-in-production"),
			FacilityCode:  getEnv("PRIVACY_FACILITY_CODE", "LOCAL-001"),
		},
		Crisis: CrisisConfig{
			APIBaseURL:     getEnv("CRISIS_API_BASE_URL", ""),
			RemoteTimeout:  getEnvDuration("CRISIS_REMOTE_TIMEOUT", 5*time.Second),
			OverrideFile:   getEnv("CRISIS_OVERRIDE_FILE", ""),
			DefaultCountry: getEnv("CRISIS_DEFAULT_COUNTRY", "US"),
			StorageBackend: getEnv("CRISIS_STORAGE_BACKEND", "memory"),
			ActionTimeout:  getEnvDuration("CRISIS_ACTION_TIMEOUT", 3*time.Second),
			LogTimeout:     getEnvDuration("CRISIS_LOG_TIMEOUT", 10*time.Second),
			RateLimitRPS:   getEnvInt("CRISIS_RATE_LIMIT_RPS", 10),
			RateLimitBurst: getEnvInt("CRISIS_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	switch cfg.Crisis.StorageBackend {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("unknown CRISIS_STORAGE_BACKEND %q", cfg.Crisis.StorageBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
