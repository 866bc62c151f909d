package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Database    DatabaseConfig    `yaml:"database"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	JWT         JWTConfig         `yaml:"jwt"`
	CORS        CORSConfig        `yaml:"cors"`
	Payment     PaymentConfig     `yaml:"payment"`
	Reservation ReservationConfig `yaml:"reservation"`
	SMS         SMSConfig         `yaml:"sms"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	Environment     string        `yaml:"environment"` // development, staging, production
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the storage backend: "postgres" or "memory"
type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string        `yaml:"url"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

// MongoConfig holds the cart store connection; empty URI keeps carts in memory
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// RedisConfig holds the cart cache connection; empty Addr disables the cache
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
}

// KafkaConfig holds the outcome event publisher; no brokers disables publishing
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string        `yaml:"secret"`
	Issuer            string        `yaml:"issuer"`
	AccessTokenExpiry time.Duration `yaml:"access_token_expiry"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// PaymentConfig holds MoMo configuration
type PaymentConfig struct {
	Provider    string        `yaml:"provider"`
	Environment string        `yaml:"environment"` // "sandbox" or "production"
	Endpoint    string        `yaml:"endpoint"`
	PartnerCode string        `yaml:"partner_code"`
	AccessKey   string        `yaml:"access_key"`
	SecretKey   string        `yaml:"secret_key"` // never exposed to clients
	RedirectURL string        `yaml:"redirect_url"`
	IPNURL      string        `yaml:"ipn_url"`
	RequestType string        `yaml:"request_type"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ReservationConfig bounds how long seats stay held
type ReservationConfig struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SweepSchedule  string        `yaml:"sweep_schedule"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`
	Currency       string        `yaml:"currency"`
}

// SMSConfig holds the notification gateway configuration
type SMSConfig struct {
	Mode     string `yaml:"mode"` // "dev" logs messages, "production" sends them
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Sender   string `yaml:"sender"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Environment:     "development",
			LogLevel:        "info",
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{Driver: "postgres"},
		Database: DatabaseConfig{
			MaxConnections:     10,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    300 * time.Second,
			AutoMigrate:        true,
		},
		Mongo: MongoConfig{Database: "travyy"},
		Redis: RedisConfig{CartTTL: 15 * time.Minute},
		Kafka: KafkaConfig{Topic: "payment-sessions"},
		JWT: JWTConfig{
			Issuer:            "travyy",
			AccessTokenExpiry: time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		Payment: PaymentConfig{
			Provider:    "momo",
			Environment: "sandbox",
			Endpoint:    "https://test-payment.momo.vn",
			RequestType: "captureWallet",
			Timeout:     15 * time.Second,
		},
		Reservation: ReservationConfig{
			SessionTTL:     15 * time.Minute,
			SweepSchedule:  "@every 1m",
			SweepBatchSize: 100,
			Currency:       "VND",
		},
		SMS: SMSConfig{Mode: "dev", Sender: "TRAVYY"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_PATH, then environment variables (including a local .env file).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := Defaults()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Environment = getEnv("ENVIRONMENT", c.Server.Environment)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MaxConnections = getEnvAsInt("DATABASE_MAX_CONNECTIONS", c.Database.MaxConnections)
	c.Database.MaxIdleConnections = getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", c.Database.MaxIdleConnections)
	c.Database.ConnMaxLifetime = getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.AutoMigrate = getEnvAsBool("DATABASE_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.CartTTL = getEnvAsDuration("REDIS_CART_TTL", c.Redis.CartTTL)

	c.Kafka.Brokers = getEnvAsSlice("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.JWT.Secret = getEnv("JWT_SECRET", c.JWT.Secret)
	c.JWT.Issuer = getEnv("JWT_ISSUER", c.JWT.Issuer)
	c.JWT.AccessTokenExpiry = getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", c.JWT.AccessTokenExpiry)

	c.CORS.AllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)
	c.CORS.AllowedMethods = getEnvAsSlice("CORS_ALLOWED_METHODS", c.CORS.AllowedMethods)
	c.CORS.AllowedHeaders = getEnvAsSlice("CORS_ALLOWED_HEADERS", c.CORS.AllowedHeaders)

	c.Payment.Environment = getEnv("MOMO_ENVIRONMENT", c.Payment.Environment)
	c.Payment.Endpoint = getEnv("MOMO_ENDPOINT", c.Payment.Endpoint)
	c.Payment.PartnerCode = getEnv("MOMO_PARTNER_CODE", c.Payment.PartnerCode)
	c.Payment.AccessKey = getEnv("MOMO_ACCESS_KEY", c.Payment.AccessKey)
	c.Payment.SecretKey = getEnv("MOMO_SECRET_KEY", c.Payment.SecretKey)
	c.Payment.RedirectURL = getEnv("MOMO_REDIRECT_URL", c.Payment.RedirectURL)
	c.Payment.IPNURL = getEnv("MOMO_IPN_URL", c.Payment.IPNURL)
	c.Payment.RequestType = getEnv("MOMO_REQUEST_TYPE", c.Payment.RequestType)
	c.Payment.Timeout = getEnvAsDuration("MOMO_TIMEOUT", c.Payment.Timeout)

	c.Reservation.SessionTTL = getEnvAsDuration("SESSION_TTL", c.Reservation.SessionTTL)
	c.Reservation.SweepSchedule = getEnv("SWEEP_SCHEDULE", c.Reservation.SweepSchedule)
	c.Reservation.SweepBatchSize = getEnvAsInt("SWEEP_BATCH_SIZE", c.Reservation.SweepBatchSize)
	c.Reservation.Currency = getEnv("CURRENCY", c.Reservation.Currency)

	c.SMS.Mode = getEnv("SMS_MODE", c.SMS.Mode)
	c.SMS.Endpoint = getEnv("SMS_ENDPOINT", c.SMS.Endpoint)
	c.SMS.APIKey = getEnv("SMS_API_KEY", c.SMS.APIKey)
	c.SMS.Sender = getEnv("SMS_SENDER", c.SMS.Sender)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage driver: %s (must be 'postgres' or 'memory')", c.Storage.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Reservation.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}

	if c.Reservation.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive")
	}

	if c.Payment.Environment == "production" {
		if c.Payment.PartnerCode == "" || c.Payment.AccessKey == "" || c.Payment.SecretKey == "" {
			return fmt.Errorf("MOMO_PARTNER_CODE, MOMO_ACCESS_KEY and MOMO_SECRET_KEY are required in production")
		}
		if c.Payment.IPNURL == "" {
			return fmt.Errorf("MOMO_IPN_URL is required in production")
		}
	}

	if c.SMS.Mode == "production" && c.SMS.Endpoint == "" {
		return fmt.Errorf("SMS_ENDPOINT is required when SMS_MODE is production")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s", "15m") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
