package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port     string `yaml:"port"`
	Store    string `yaml:"store"`
	DBConn   string `yaml:"db_conn"`
	LogLevel string `yaml:"log_level"`

	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	StoreTimeout time.Duration `yaml:"store_timeout"`

	CBRURL string `yaml:"cbr_url"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SenderEmail  string `yaml:"sender_email"`

	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`

	PruneSchedule    string        `yaml:"prune_schedule"`
	StatsSchedule    string        `yaml:"stats_schedule"`
	RequestRetention time.Duration `yaml:"request_retention"`

	AdminPassword string `yaml:"admin_password"`
	UserPassword  string `yaml:"user_password"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

func defaults() *Config {
	return &Config{
		Port:             "8080",
		Store:            StoreMemory,
		DBConn:           "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable",
		LogLevel:         "INFO",
		JWTSecret:        "secret",
		TokenTTL:         10 * time.Minute,
		StoreTimeout:     5 * time.Second,
		CBRURL:           "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx",
		SMTPPort:         587,
		PruneSchedule:    "@hourly",
		StatsSchedule:    "@every 15m",
		RequestRetention: 24 * time.Hour,
		AdminPassword:    "1234",
		UserPassword:     "1234",
	}
}

// NewConfig loads configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables
func NewConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Store = getEnv("STORE", cfg.Store)
	cfg.DBConn = getEnv("DB_CONN", cfg.DBConn)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.CBRURL = getEnv("CBR_URL", cfg.CBRURL)
	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SenderEmail = getEnv("SENDER_EMAIL", cfg.SenderEmail)
	cfg.TelegramToken = getEnv("TELEGRAM_TOKEN", cfg.TelegramToken)
	cfg.PruneSchedule = getEnv("PRUNE_SCHEDULE", cfg.PruneSchedule)
	cfg.StatsSchedule = getEnv("STATS_SCHEDULE", cfg.StatsSchedule)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.UserPassword = getEnv("USER_PASSWORD", cfg.UserPassword)

	var err error
	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	if cfg.TelegramChatID, err = getEnvInt64("TELEGRAM_CHAT_ID", cfg.TelegramChatID); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = getEnvDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return nil, err
	}
	if cfg.RequestRetention, err = getEnvDuration("REQUEST_RETENTION", cfg.RequestRetention); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DBConn == "" {
			return fmt.Errorf("DB_CONN is required")
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required with TELEGRAM_TOKEN")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	return nil
}

// NotificationsEnabled reports whether an SMTP relay is configured
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.SenderEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultVal int64) (int64, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
