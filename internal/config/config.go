package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Scheduling rules
	Timezone            string
	BusinessStartHour   int
	BusinessEndHour     int
	SlotGridMinutes     int
	AppointmentDuration int // minutes
	BufferMinutes       int

	// Google Calendar (service account)
	GoogleServiceAccountEmail string
	GooglePrivateKeyPEM       string
	GoogleCalendarID          string
	GoogleCalendarOwnerEmail  string

	// Zoom (server-to-server OAuth)
	ZoomAccountID    string
	ZoomClientID     string
	ZoomClientSecret string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AuthJWTSecret string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	ProviderTimeout   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		Timezone:            getEnv("SCHEDULE_TZ", "America/New_York"),
		BusinessStartHour:   getEnvAsInt("BUSINESS_START_HOUR", 9),
		BusinessEndHour:     getEnvAsInt("BUSINESS_END_HOUR", 17),
		SlotGridMinutes:     getEnvAsInt("SLOT_GRID_MINUTES", 15),
		AppointmentDuration: getEnvAsInt("APPOINTMENT_DURATION_MINUTES", 30),
		BufferMinutes:       getEnvAsInt("BUFFER_MINUTES", 5),

		GoogleServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
		GooglePrivateKeyPEM:       strings.ReplaceAll(getEnv("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),
		GoogleCalendarID:          getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleCalendarOwnerEmail:  getEnv("GOOGLE_CALENDAR_OWNER_EMAIL", ""),

		ZoomAccountID:    getEnv("ZOOM_ACCOUNT_ID", ""),
		ZoomClientID:     getEnv("ZOOM_CLIENT_ID", ""),
		ZoomClientSecret: getEnv("ZOOM_CLIENT_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "MoveWell Physio"),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		ProviderTimeout:   getEnvAsDuration("PROVIDER_TIMEOUT", 20*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
