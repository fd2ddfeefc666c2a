package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort string
	LogLevel string

	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	Postgres repository.Credentials

	CatalogDBPath         string
	CatalogMigrationsPath string

	KafkaBrokers     []string
	OrderEventsTopic string

	JWTSecret      string
	AllowedOrigins []string

	Pricing order.Pricing

	GuestCartTTL       time.Duration
	SessionIdleTimeout time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads the environment, after filling it from a .env file when one exists.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var errs []error
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		MongoDBName: getEnv("MONGO_DB_NAME", "storefront"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Postgres: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getInt("DB_PORT", 5432, &errs),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "storefront"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "internal/repository/migrations"),
		},

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),

		KafkaBrokers:     getList("KAFKA_BROKERS", []string{"localhost:9092"}),
		OrderEventsTopic: getEnv("ORDER_EVENTS_TOPIC", "order-events"),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getList("ALLOWED_ORIGINS", nil),

		Pricing: order.Pricing{
			FreeShippingThreshold: getDecimal("FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(5000), &errs),
			FlatShippingRate:      getDecimal("FLAT_SHIPPING_RATE", decimal.NewFromInt(350), &errs),
			PayOnDeliveryMethods:  getList("PAY_ON_DELIVERY_METHODS", []string{"cod"}),
		},

		GuestCartTTL:       getDuration("GUEST_CART_TTL", 720*time.Hour, &errs),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute, &errs),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getDecimal(key string, defaultValue decimal.Decimal, errs *[]error) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
