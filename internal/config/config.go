// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// --- HTTP ---
	Port        string   `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- Database ---
	// DBDriver is one of pgx, pq, mysql or memory.
	DBDriver       string `envconfig:"DB_DRIVER" default:"pgx"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string `envconfig:"DB_PASSWORD"`
	DBName         string `envconfig:"DB_NAME" default:"feedback"`
	DBSSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
	DBMaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`

	// --- Vote ledger ---
	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	VoteMaxAttempts int           `envconfig:"VOTE_MAX_ATTEMPTS" default:"3"`

	// --- Auth ---
	JWTSecret string        `envconfig:"JWT_SECRET"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"72h"`

	// --- Redis (optional) ---
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	SummaryCacheTTL time.Duration `envconfig:"SUMMARY_CACHE_TTL" default:"5m"`

	// --- Kafka (optional) ---
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaVoteTopic    string   `envconfig:"KAFKA_VOTE_TOPIC" default:"feedback.votes"`
	KafkaSummaryTopic string   `envconfig:"KAFKA_SUMMARY_TOPIC" default:"feedback.weekly-summary"`

	// --- Weekly report job ---
	// Empty disables the scheduler.
	ReportCron string `envconfig:"REPORT_CRON" default:"0 8 * * MON"`

	// --- Twilio (optional) ---
	TwilioAccountSID string   `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string   `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string   `envconfig:"TWILIO_FROM"`
	ReportSMSTo      []string `envconfig:"REPORT_SMS_TO"`
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "pgx", "pq", "mysql", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be one of pgx, pq, mysql, memory, got %q", c.DBDriver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.VoteMaxAttempts <= 0 {
		return fmt.Errorf("VOTE_MAX_ATTEMPTS must be > 0")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.DBMaxIdleConns < 0 || c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("invalid DB_MAX_IDLE_CONNS/DB_MAX_OPEN_CONNS")
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location is the zone reports are computed in. Validate has already
// checked that it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SMSEnabled reports whether the weekly digest can be sent by SMS.
func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != "" && len(c.ReportSMSTo) > 0
}

// SetupLogging configures the standard logrus logger.
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
