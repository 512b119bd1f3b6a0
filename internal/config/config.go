package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// HTTP
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	// Sessions
	SessionSecret string   `envconfig:"SESSION_SECRET"`
	StaticTokens  []string `envconfig:"STATIC_TOKENS"`
	SignInPath    string   `envconfig:"SIGN_IN_PATH" default:"/api/auth/signin"`
	// Calendly webhooks
	CalendlySigningKey         string        `envconfig:"CALENDLY_SIGNING_KEY"`
	CalendlySignatureTolerance time.Duration `envconfig:"CALENDLY_SIGNATURE_TOLERANCE" default:"3m"`
	// Outbound booking events
	EventsDriver      string `envconfig:"EVENTS_DRIVER" default:"none"`
	RabbitURL         string `envconfig:"RABBIT_URL"`
	BookingExchange   string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	NATSURL           string `envconfig:"NATS_URL"`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"bookings"`
	// Google Calendar
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (App, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is fine, the environment may already be populated
		_ = godotenv.Load(f)
	}

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c App) Validate() error {
	switch c.EventsDriver {
	case "", "none":
	case "rabbitmq":
		if c.RabbitURL == "" {
			return errors.New("RABBIT_URL required when EVENTS_DRIVER=rabbitmq")
		}
	case "nats":
		if c.NATSURL == "" {
			return errors.New("NATS_URL required when EVENTS_DRIVER=nats")
		}
	default:
		return fmt.Errorf("unknown EVENTS_DRIVER %q", c.EventsDriver)
	}
	if c.SessionSecret == "" && len(c.StaticTokens) == 0 {
		return errors.New("SESSION_SECRET or STATIC_TOKENS required")
	}
	return nil
}

func (c App) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func (c App) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c App) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}
