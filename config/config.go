package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvJWTSecret        = "TICKETBARI_JWT_SECRET"
	EnvPassSecret       = "TICKETBARI_PASS_SECRET"
	EnvDatabasePassword = "TICKETBARI_DATABASE_PASSWORD"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address                string `yaml:"address"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

func (h HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeoutSeconds) * time.Second
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	TicketsCacheTTLSeconds int `yaml:"tickets_cache_ttl_seconds"`
	LockTTLSeconds         int `yaml:"lock_ttl_seconds"`
	MutationTimeoutSeconds int `yaml:"mutation_timeout_seconds"`
	PageSize               int `yaml:"page_size"`
}

func (b BookingConfig) TicketsCacheTTL() time.Duration {
	return time.Duration(b.TicketsCacheTTLSeconds) * time.Second
}

func (b BookingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (b BookingConfig) MutationTimeout() time.Duration {
	return time.Duration(b.MutationTimeoutSeconds) * time.Second
}

type WorkerConfig struct {
	TripExpirySweepMinutes int `yaml:"trip_expiry_sweep_minutes"`
	// TripExpiredFlagTTLHours is how long a booking stays marked as
	// reported, so the sweep does not notify twice.
	TripExpiredFlagTTLHours int `yaml:"trip_expired_flag_ttl_hours"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.TripExpirySweepMinutes) * time.Minute
}

func (w WorkerConfig) FlagTTL() time.Duration {
	return time.Duration(w.TripExpiredFlagTTLHours) * time.Hour
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// PassSecret signs ticket pass QR payloads. It is kept apart from
	// JWTSecret so either can be rotated alone.
	PassSecret      string `yaml:"pass_secret"`
	Issuer          string `yaml:"issuer"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads .env (if any) into the environment, then the YAML file
// at path, and applies defaults and environment overrides.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and fills in defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownTimeoutSeconds <= 0 {
		c.HTTP.ShutdownTimeoutSeconds = 5
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingEventsTopic == "" {
		c.Kafka.BookingEventsTopic = "booking-events"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "booking-notifications"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "ticketbari-worker"
	}
	if c.Booking.TicketsCacheTTLSeconds <= 0 {
		c.Booking.TicketsCacheTTLSeconds = 60
	}
	if c.Booking.LockTTLSeconds <= 0 {
		c.Booking.LockTTLSeconds = 10
	}
	if c.Booking.MutationTimeoutSeconds <= 0 {
		c.Booking.MutationTimeoutSeconds = 5
	}
	if c.Booking.PageSize <= 0 {
		c.Booking.PageSize = 6
	}
	if c.Worker.TripExpirySweepMinutes <= 0 {
		c.Worker.TripExpirySweepMinutes = 5
	}
	if c.Worker.TripExpiredFlagTTLHours <= 0 {
		c.Worker.TripExpiredFlagTTLHours = 72
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "ticketbari"
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = 24 * 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getenv(EnvPassSecret); v != "" {
		c.Auth.PassSecret = v
	}
	if v := getenv(EnvDatabasePassword); v != "" {
		c.Database.Password = v
	}
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret))
	}
	switch {
	case c.Auth.PassSecret == "":
		errs = append(errs, fmt.Errorf("auth.pass_secret is required (or set %s)", EnvPassSecret))
	case c.Auth.PassSecret == c.Auth.JWTSecret:
		errs = append(errs, errors.New("auth.pass_secret must differ from auth.jwt_secret"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
