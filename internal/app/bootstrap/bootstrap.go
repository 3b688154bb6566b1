// Package bootstrap wires external dependencies from configuration.
// Builders return nil (with a log line) when a dependency is not
// configured, so cmd/api can degrade instead of crashing.
package bootstrap

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/movewell/physio-platform/internal/appointment"
	appconfig "github.com/movewell/physio-platform/internal/config"
	"github.com/movewell/physio-platform/internal/gcal"
	"github.com/movewell/physio-platform/internal/notify"
	"github.com/movewell/physio-platform/internal/schedule"
	"github.com/movewell/physio-platform/internal/settings"
	"github.com/movewell/physio-platform/internal/zoom"
	"github.com/movewell/physio-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildRepository returns a Postgres-backed repository when DATABASE_URL
// is set, otherwise an in-memory one for local development.
func BuildRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (appointment.Repository, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, appointments are stored in memory")
		return appointment.NewInMemoryRepository(), nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return appointment.NewPostgresRepository(pool), nil
}

// BuildScheduleEngine assembles the availability engine from config.
func BuildScheduleEngine(cfg *appconfig.Config) (*schedule.Engine, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	rules := schedule.DefaultRules(loc)
	rules.StartHour = cfg.BusinessStartHour
	rules.EndHour = cfg.BusinessEndHour
	return schedule.NewEngine(rules, cfg.AppointmentDuration, cfg.BufferMinutes, cfg.SlotGridMinutes), nil
}

// calendarProvider adapts the gcal client to the orchestrator's
// provider interface.
type calendarProvider struct {
	client *gcal.Client
}

func (p calendarProvider) Provision(ctx context.Context) (appointment.Calendar, error) {
	return p.client.Provision(ctx)
}

// BuildCalendarProvider wires service-account credentials, the calendar
// client and the settings store. Returns nil when the service account
// is not configured.
func BuildCalendarProvider(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (appointment.CalendarProvider, error) {
	if cfg.GoogleServiceAccountEmail == "" || cfg.GooglePrivateKeyPEM == "" {
		logger.Warn("google service account not configured, calendar provider disabled")
		return nil, nil
	}

	creds, err := gcal.NewCredentials(gcal.CredentialsConfig{
		Email:         cfg.GoogleServiceAccountEmail,
		PrivateKeyPEM: cfg.GooglePrivateKeyPEM,
		HTTPClient:    &http.Client{Timeout: cfg.ProviderTimeout},
	}, logger.Component("gcal.credentials"))
	if err != nil {
		return nil, err
	}

	var store gcal.SettingsStore
	if redisClient != nil {
		store = settings.NewStore(redisClient)
	}

	client := gcal.NewClient(gcal.ClientConfig{
		CalendarID:   cfg.GoogleCalendarID,
		OwnerEmail:   cfg.GoogleCalendarOwnerEmail,
		Timezone:     cfg.Timezone,
		CalendarName: "MoveWell Physio Sessions",
		HTTPClient:   &http.Client{Timeout: cfg.ProviderTimeout},
	}, creds, store, logger.Component("gcal"))

	return calendarProvider{client: client}, nil
}

// BuildVideoClient returns a Zoom client, or nil when credentials are
// absent. A nil gateway means bookings proceed without meeting links.
func BuildVideoClient(cfg *appconfig.Config, logger *logging.Logger) appointment.VideoGateway {
	if cfg.ZoomAccountID == "" || cfg.ZoomClientID == "" || cfg.ZoomClientSecret == "" {
		logger.Warn("zoom credentials not configured, bookings will have no meeting links")
		return nil
	}
	return zoom.NewClient(zoom.Config{
		AccountID:    cfg.ZoomAccountID,
		ClientID:     cfg.ZoomClientID,
		ClientSecret: cfg.ZoomClientSecret,
		HTTPClient:   &http.Client{Timeout: cfg.ProviderTimeout},
	}, logger.Component("zoom"))
}

// BuildNotifier wires the SendGrid confirmation sender, falling back to
// the logging stub when no API key is configured.
func BuildNotifier(cfg *appconfig.Config, logger *logging.Logger) *notify.Service {
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Component("sendgrid")); sg != nil {
		sender = sg
	} else {
		sender = notify.NewStubEmailSender(logger.Component("email-stub"))
	}
	return notify.NewService(sender, logger.Component("notify"))
}
