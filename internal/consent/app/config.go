package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	DBDriver     string // Optional: sqlite or postgres (default: sqlite)
	DatabaseFile string // Optional: path to SQLite database file (default: ./consent.db)
	PostgresDSN  string // Required when DBDriver is postgres
	SeedFile     string // Optional: JSON seed loaded into an empty store

	JWKSURL             string        // Optional: JWKS endpoint of the identity provider
	PublicKeyFile       string        // Optional: PEM Ed25519 public key, used when JWKSURL is empty
	KeyID               string        // Optional: kid of the static public key (default: consent-key)
	Issuer              string        // Optional: required iss claim
	Audience            []string      // Optional: accepted aud values, comma separated
	JWKSRefreshInterval time.Duration // JWKS refresh interval (default: 5m)

	ReminderInterval time.Duration // Reminder pass interval (default: 1h)
	SlackWebhookURL  string        // Optional: incoming webhook for reminders and escalations
	SlackChannel     string        // Optional: channel override for the webhook
	SMTPAddr         string        // Optional: host:port of the mail relay
	SMTPFrom         string        // Optional: envelope sender (default: consent@localhost)
	SMTPUsername     string        // Optional: PLAIN auth user for the relay
	SMTPPassword     string        // Optional: PLAIN auth password for the relay
}

func LoadConfig() Config {
	return Config{
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		DBDriver:     strings.ToLower(getEnvOrDefault("CONSENT_DB_DRIVER", "sqlite")),
		DatabaseFile: getEnvOrDefault("CONSENT_DATABASE_FILE", "consent.db"),
		PostgresDSN:  os.Getenv("CONSENT_PG_DSN"),
		SeedFile:     os.Getenv("CONSENT_SEED_FILE"),

		JWKSURL:             os.Getenv("AUTH_JWKS_URL"),
		PublicKeyFile:       os.Getenv("AUTH_PUBLIC_KEY_FILE"),
		KeyID:               getEnvOrDefault("AUTH_KEY_ID", "consent-key"),
		Issuer:              os.Getenv("AUTH_ISSUER"),
		Audience:            getEnvList("AUTH_AUDIENCE"),
		JWKSRefreshInterval: getEnvDurationOrDefault("JWKS_REFRESH_INTERVAL", 5*time.Minute),

		ReminderInterval: getEnvDurationOrDefault("REMINDER_INTERVAL", time.Hour),
		SlackWebhookURL:  os.Getenv("SLACK_WEBHOOK_URL"),
		SlackChannel:     os.Getenv("SLACK_CHANNEL"),
		SMTPAddr:         os.Getenv("SMTP_ADDR"),
		SMTPFrom:         getEnvOrDefault("SMTP_FROM", "consent@localhost"),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
	}
}

// Validate rejects combinations the application cannot start with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("config: CONSENT_PG_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown CONSENT_DB_DRIVER %q", c.DBDriver)
	}
	if c.JWKSURL == "" && c.PublicKeyFile == "" {
		return errors.New("config: one of AUTH_JWKS_URL or AUTH_PUBLIC_KEY_FILE is required")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
