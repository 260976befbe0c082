package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	EventStore    EventStoreConfig
	Auth          AuthConfig
	PHI           PHIConfig
	Video         VideoConfig
	Payment       PaymentConfig
	Transcription TranscriptionConfig
	EHR           EHRConfig
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

// EventStoreConfig holds configuration for EventStoreDB.
type EventStoreConfig struct {
	// Host is the EventStoreDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens
	JWTSecret string
	// TokenTTL is the issued-token lifetime
	TokenTTL time.Duration
}

// PHIConfig holds the process-wide encryption key for protected health
// information. The key is fixed for the lifetime of the process; rotation
// requires re-encrypting stored ciphertexts and is handled out of band.
type PHIConfig struct {
	// KeyHex is the hex-encoded 32-byte AES key
	KeyHex string
}

// VideoConfig holds configuration for the video-room provider.
type VideoConfig struct {
	APIKey string
	APIURL string
}

func (v VideoConfig) Configured() bool {
	return v.APIKey != ""
}

// PaymentConfig holds configuration for the payment processor.
type PaymentConfig struct {
	AccessToken   string
	ApplicationID string
	Environment   string // sandbox, production
}

func (p PaymentConfig) Configured() bool {
	return p.AccessToken != "" && p.ApplicationID != ""
}

// TranscriptionConfig holds configuration for the speech-transcription provider.
type TranscriptionConfig struct {
	APIKey   string
	Language string
	Model    string
}

func (t TranscriptionConfig) Configured() bool {
	return t.APIKey != ""
}

// EHRConfig holds configuration for the optional hospital-information-system
// importer (legacy medical history over SQL Server).
type EHRConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func Load() (*Config, error) {
	// Optional .env for local development; ignore absence
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "telecare"),
			Password: getEnv("DB_PASSWORD", "telecare"),
			Database: getEnv("DB_NAME", "telecare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTL:  getEnvDuration("JWT_TOKEN_TTL", 7*24*time.Hour),
		},
		PHI: PHIConfig{
			KeyHex: getEnv("PHI_ENCRYPTION_KEY", ""),
		},
		Video: VideoConfig{
			APIKey: getEnv("VIDEO_API_KEY", ""),
			APIURL: getEnv("VIDEO_API_URL", "https://api.daily.co/v1"),
		},
		Payment: PaymentConfig{
			AccessToken:   getEnv("SQUARE_ACCESS_TOKEN", ""),
			ApplicationID: getEnv("SQUARE_APPLICATION_ID", ""),
			Environment:   getEnv("SQUARE_ENVIRONMENT", "sandbox"),
		},
		Transcription: TranscriptionConfig{
			APIKey:   getEnv("DEEPGRAM_API_KEY", ""),
			Language: getEnv("DEEPGRAM_LANGUAGE", "en-US"),
			Model:    getEnv("DEEPGRAM_MODEL", "nova-2"),
		},
		EHR: EHRConfig{
			Enabled:  getEnvBool("EHR_IMPORT_ENABLED", false),
			Host:     getEnv("EHR_DB_HOST", "localhost"),
			Port:     getEnvInt("EHR_DB_PORT", 1433),
			User:     getEnv("EHR_DB_USER", ""),
			Password: getEnv("EHR_DB_PASSWORD", ""),
			Database: getEnv("EHR_DB_NAME", ""),
		},
	}, nil
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
