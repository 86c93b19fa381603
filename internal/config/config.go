package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"park-ticketing/internal/calendar"
)

type Config struct {
	Server ServerConfig
	Log    LogConfig
	Park   ParkConfig
	Store  StoreConfig
	Email  EmailConfig
	Auth   AuthConfig
	QR     QRConfig
	Lock   LockConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Dir   string
	Level string
}

// ParkConfig holds the booking policy parameters.
type ParkConfig struct {
	Name            string
	Policy          calendar.Policy
	DailyCap        int
	MaxPerPurchase  int
	MaxAge          int
	HorizonMonths   int
	CheckoutBaseURL string
}

type StoreConfig struct {
	Driver   string // json, sqlite or postgres
	Path     string
	DSN      string
	MaxConns int
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
}

type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	MockTokens   bool
	DemoPassword string
}

type QRConfig struct {
	SecretKey string
	Size      int
}

type LockConfig struct {
	Backend string // local or redis
	TTL     time.Duration
	Wait    time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

func Load() (*Config, error) {
	policy := calendar.DefaultPolicy()

	if v, ok := os.LookupEnv("PARK_CLOSED_WEEKDAYS"); ok {
		days, err := calendar.ParseWeekdays(v)
		if err != nil {
			return nil, fmt.Errorf("PARK_CLOSED_WEEKDAYS: %w", err)
		}
		policy.ClosedWeekdays = days
	}
	if v, ok := os.LookupEnv("PARK_HOLIDAYS"); ok {
		holidays, err := calendar.ParseHolidays(v)
		if err != nil {
			return nil, fmt.Errorf("PARK_HOLIDAYS: %w", err)
		}
		policy.Holidays = holidays
	}
	tz := getEnv("PARK_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("PARK_TIMEZONE: %w", err)
	}
	policy.Location = loc

	smtpHost := getEnv("SMTP_HOST", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Dir:   getEnv("LOG_DIR", "logs"),
			Level: getEnv("LOG_LEVEL", "INFO"),
		},
		Park: ParkConfig{
			Name:            getEnv("PARK_NAME", "Theme Park"),
			Policy:          policy,
			DailyCap:        getEnvInt("PARK_DAILY_CAP", 15),
			MaxPerPurchase:  getEnvInt("PARK_MAX_PER_PURCHASE", 10),
			MaxAge:          getEnvInt("PARK_MAX_AGE", 120),
			HorizonMonths:   getEnvInt("PARK_HORIZON_MONTHS", 2),
			CheckoutBaseURL: getEnv("CHECKOUT_BASE_URL", "https://checkout.mock.park.example.com/pay"),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", "json")),
			Path:     getEnv("STORE_PATH", "data/tickets.json"),
			DSN:      getEnv("STORE_DSN", "file:data/tickets.db?cache=shared"),
			MaxConns: getEnvInt("STORE_MAX_CONNS", 1),
		},
		Email: EmailConfig{
			Enabled:      smtpHost != "" && getEnv("SMTP_USERNAME", "") != "" && getEnv("SMTP_PASSWORD", "") != "",
			SMTPHost:     smtpHost,
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("MAIL_FROM", "no-reply@park.example.com"),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			TokenTTL:     time.Duration(getEnvInt("AUTH_TOKEN_TTL_MINUTES", 120)) * time.Minute,
			MockTokens:   getEnvBool("AUTH_MOCK_TOKENS", true),
			DemoPassword: getEnv("DEMO_USER_PASSWORD", "secret"),
		},
		QR: QRConfig{
			SecretKey: getEnv("QR_SECRET_KEY", ""),
			Size:      getEnvInt("QR_SIZE", 256),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getEnv("CAPACITY_LOCK", "local")),
			TTL:     time.Duration(getEnvInt("CAPACITY_LOCK_TTL_SECONDS", 10)) * time.Second,
			Wait:    time.Duration(getEnvInt("CAPACITY_LOCK_WAIT_SECONDS", 5)) * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC_TICKETS", "park.tickets.issued"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Park.DailyCap <= 0 {
		return fmt.Errorf("PARK_DAILY_CAP must be positive, got %d", c.Park.DailyCap)
	}
	if c.Park.MaxPerPurchase <= 0 {
		return fmt.Errorf("PARK_MAX_PER_PURCHASE must be positive, got %d", c.Park.MaxPerPurchase)
	}
	if c.Park.HorizonMonths <= 0 {
		return fmt.Errorf("PARK_HORIZON_MONTHS must be positive, got %d", c.Park.HorizonMonths)
	}
	switch c.Store.Driver {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Lock.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported CAPACITY_LOCK %q", c.Lock.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
