package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Render    RenderConfig    `yaml:"render"`
	Mail      MailConfig      `yaml:"mail"`
	Numbering NumberingConfig `yaml:"numbering"`
	Session   SessionConfig   `yaml:"session"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
	// ConsentURL is where a staff confirm is redirected while agreements
	// are pending.
	ConsentURL string `yaml:"consent_url"`
}

type DatabaseConfig struct {
	URL              string        `yaml:"url"`
	MaxConns         int           `yaml:"max_conns"`
	MinConns         int           `yaml:"min_conns"`
	MigrationsPath   string        `yaml:"migrations_path"`
	TimeZone         string        `yaml:"time_zone"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	// Backend is "supabase" or "memory".
	Backend     string `yaml:"backend"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	Bucket      string `yaml:"bucket"`
}

type RenderConfig struct {
	// FontPath points at a UTF-8 TrueType font with Japanese glyphs. Required.
	FontPath       string `yaml:"font_path"`
	DraftWatermark string `yaml:"draft_watermark"`
}

type MailConfig struct {
	SMTPAddr  string `yaml:"smtp_addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	From      string `yaml:"from"`
	InviteURL string `yaml:"invite_url"`
}

type NumberingConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout"`
	TimeZone    string        `yaml:"time_zone"`
}

type SessionConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: 15 * time.Second, RateLimit: 100,
			ConsentURL: "/contract/confirm-staff/consent/"},
		Database:  DatabaseConfig{MaxConns: 20, MinConns: 5, TimeZone: "Asia/Tokyo", StatementTimeout: 30 * time.Second},
		Redis:     RedisConfig{Addr: "localhost:6379"},
		Auth:      AuthConfig{Issuer: "staffcore", TokenTTL: 12 * time.Hour},
		Storage:   StorageConfig{Backend: "supabase", Bucket: "contract-prints"},
		Render:    RenderConfig{DraftWatermark: "DRAFT"},
		Numbering: NumberingConfig{LockTimeout: 3 * time.Second, TimeZone: "Asia/Tokyo"},
		Session:   SessionConfig{TTL: 8 * time.Hour, Prefix: "staffcore:session:"},
		Worker:    WorkerConfig{Concurrency: 10},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if any, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var err error
	if cfg.Server.Port, err = getEnvInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	if cfg.Server.RateLimit, err = getEnvInt("RATE_LIMIT_PER_MINUTE", cfg.Server.RateLimit); err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if cfg.Server.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", cfg.Database.MaxConns); err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if cfg.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", cfg.Database.MinConns); err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	if cfg.Database.StatementTimeout, err = getEnvDuration("DB_STATEMENT_TIMEOUT", cfg.Database.StatementTimeout); err != nil {
		return nil, fmt.Errorf("invalid DB_STATEMENT_TIMEOUT: %w", err)
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.Auth.TokenTTL, err = getEnvDuration("JWT_TTL", cfg.Auth.TokenTTL); err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	if cfg.Numbering.LockTimeout, err = getEnvDuration("NUMBERING_LOCK_TIMEOUT", cfg.Numbering.LockTimeout); err != nil {
		return nil, fmt.Errorf("invalid NUMBERING_LOCK_TIMEOUT: %w", err)
	}
	if cfg.Session.TTL, err = getEnvDuration("SESSION_TTL", cfg.Session.TTL); err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	if cfg.Worker.Concurrency, err = getEnvInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency); err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.ConsentURL = getEnv("CONSENT_URL", cfg.Server.ConsentURL)
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)
	cfg.Database.TimeZone = getEnv("DB_TIME_ZONE", cfg.Database.TimeZone)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.SupabaseURL = getEnv("SUPABASE_URL", cfg.Storage.SupabaseURL)
	cfg.Storage.SupabaseKey = getEnv("SUPABASE_SERVICE_KEY", cfg.Storage.SupabaseKey)
	cfg.Storage.Bucket = getEnv("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Render.FontPath = getEnv("RENDER_FONT_PATH", cfg.Render.FontPath)
	cfg.Render.DraftWatermark = getEnv("RENDER_DRAFT_WATERMARK", cfg.Render.DraftWatermark)
	cfg.Mail.SMTPAddr = getEnv("SMTP_ADDR", cfg.Mail.SMTPAddr)
	cfg.Mail.Username = getEnv("SMTP_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = getEnv("SMTP_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = getEnv("MAIL_FROM", cfg.Mail.From)
	cfg.Mail.InviteURL = getEnv("MAIL_INVITE_URL", cfg.Mail.InviteURL)
	cfg.Numbering.TimeZone = getEnv("NUMBERING_TIME_ZONE", cfg.Numbering.TimeZone)
	cfg.Session.Prefix = getEnv("SESSION_PREFIX", cfg.Session.Prefix)

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location is the zone contract numbers take their year from.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Numbering.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load numbering time zone: %w", err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Render.FontPath == "" {
		missing = append(missing, "RENDER_FONT_PATH")
	}
	if c.Storage.Backend == "supabase" && (c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "") {
		missing = append(missing, "SUPABASE_URL/SUPABASE_SERVICE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
