package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Domenick1991/tripbooking/internal/domain"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Booking   BookingConfig   `yaml:"booking"`
	Providers ProvidersConfig `yaml:"providers"`
	Worker    WorkerConfig    `yaml:"worker"`
}

type HTTPConfig struct {
	Address    string `yaml:"address" env:"HTTP_ADDRESS"`
	SwaggerDir string `yaml:"swagger_dir" env:"HTTP_SWAGGER_DIR"`
}

type GRPCConfig struct {
	Address string `yaml:"address" env:"GRPC_ADDRESS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	BookingTopic       string   `yaml:"booking_topic" env:"KAFKA_BOOKING_TOPIC"`
	NotificationsTopic string   `yaml:"notifications_topic" env:"KAFKA_NOTIFICATIONS_TOPIC"`
	PaymentsTopic      string   `yaml:"payments_topic" env:"KAFKA_PAYMENTS_TOPIC"`
	PaymentEventsTopic string   `yaml:"payment_events_topic" env:"KAFKA_PAYMENT_EVENTS_TOPIC"`
	GroupID            string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
}

type BookingConfig struct {
	ResultCacheTTLMinutes  int `yaml:"result_cache_ttl_minutes"`
	TripLockTTLSeconds     int `yaml:"trip_lock_ttl_seconds"`
	ProviderTimeoutSeconds int `yaml:"provider_timeout_seconds"`
	MaxParallelComponents  int `yaml:"max_parallel_components"`
	StaleAfterMinutes      int `yaml:"stale_after_minutes"`
}

func (b BookingConfig) ResultCacheTTL() time.Duration {
	if b.ResultCacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(b.ResultCacheTTLMinutes) * time.Minute
}

func (b BookingConfig) TripLockTTL() time.Duration {
	if b.TripLockTTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(b.TripLockTTLSeconds) * time.Second
}

func (b BookingConfig) ProviderTimeout() time.Duration {
	if b.ProviderTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.ProviderTimeoutSeconds) * time.Second
}

func (b BookingConfig) StaleAfter() time.Duration {
	if b.StaleAfterMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(b.StaleAfterMinutes) * time.Minute
}

// ProvidersConfig maps each component type to the provider names allowed
// to fulfil it. The simulated section tunes the in-process adapters used
// until real integrations exist.
type ProvidersConfig struct {
	Allowed   map[string][]string `yaml:"allowed"`
	Simulated SimulatedConfig     `yaml:"simulated"`
}

type SimulatedConfig struct {
	LatencyMillis int      `yaml:"latency_ms"`
	FailureRate   float64  `yaml:"failure_rate"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	Burst         int      `yaml:"burst"`
	FailProviders []string `yaml:"fail_providers"`
}

// AllowedByType converts the raw provider map into typed keys.
func (p ProvidersConfig) AllowedByType() (map[domain.ComponentType][]string, error) {
	out := make(map[domain.ComponentType][]string, len(p.Allowed))
	for raw, names := range p.Allowed {
		ct, err := domain.ParseComponentType(raw)
		if err != nil {
			return nil, fmt.Errorf("providers.allowed: %w", err)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("providers.allowed: no providers for %s", ct)
		}
		out[ct] = names
	}
	return out, nil
}

type WorkerConfig struct {
	StaleSweepMinutes int `yaml:"stale_sweep_minutes"`
}

func (w WorkerConfig) StaleSweepInterval() time.Duration {
	if w.StaleSweepMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(w.StaleSweepMinutes) * time.Minute
}

func (c *Config) Validate() error {
	if _, err := c.Providers.AllowedByType(); err != nil {
		return err
	}
	if c.Providers.Simulated.FailureRate < 0 || c.Providers.Simulated.FailureRate > 1 {
		return fmt.Errorf("providers.simulated.failure_rate must be within [0,1], got %v", c.Providers.Simulated.FailureRate)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Environment variables override the file.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
