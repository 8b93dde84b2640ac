package exchange

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds the exchange server settings, read from the environment.
type Config struct {
	Network        string        // EXCHANGE_NETWORK: "tcp" (default) or "vsock"
	Address        string        // EXCHANGE_ADDR: tcp listen address
	VsockPort      uint32        // EXCHANGE_VSOCK_PORT
	MaxWorkers     int           // EXCHANGE_MAX_WORKERS (required)
	ReadTimeout    time.Duration // EXCHANGE_READ_TIMEOUT
	LedgerDir      string        // EXCHANGE_LEDGER_DIR: empty disables the ledger
	SigningKeyFile string        // EXCHANGE_SIGNING_KEY_FILE: empty generates an ephemeral key
	KafkaBrokers   []string      // EXCHANGE_KAFKA_BROKERS: comma separated; empty disables Kafka
	KafkaTopic     string        // EXCHANGE_KAFKA_TOPIC
	LogLevel       string        // LOG_LEVEL
}

// LoadConfig loads the given .env files (".env" when none are given; missing
// files are ignored) and then reads the configuration from the environment.
// Variables already set in the environment take precedence over .env files.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	maxWorkers, err := getRequiredEnvInt("EXCHANGE_MAX_WORKERS")
	if err != nil {
		return Config{}, fmt.Errorf("failed to get max workers config: %w", err)
	}
	if maxWorkers <= 0 {
		return Config{}, fmt.Errorf("EXCHANGE_MAX_WORKERS must be positive, got %d", maxWorkers)
	}

	vsockPort, err := strconv.ParseUint(getEnvDefault("EXCHANGE_VSOCK_PORT", "5000"), 10, 32)
	if err != nil {
		return Config{}, fmt.Errorf("invalid value for EXCHANGE_VSOCK_PORT: %w", err)
	}

	readTimeout, err := time.ParseDuration(getEnvDefault("EXCHANGE_READ_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid value for EXCHANGE_READ_TIMEOUT: %w", err)
	}

	cfg := Config{
		Network:        getEnvDefault("EXCHANGE_NETWORK", "tcp"),
		Address:        getEnvDefault("EXCHANGE_ADDR", ":7400"),
		VsockPort:      uint32(vsockPort),
		MaxWorkers:     maxWorkers,
		ReadTimeout:    readTimeout,
		LedgerDir:      os.Getenv("EXCHANGE_LEDGER_DIR"),
		SigningKeyFile: os.Getenv("EXCHANGE_SIGNING_KEY_FILE"),
		KafkaBrokers:   splitList(os.Getenv("EXCHANGE_KAFKA_BROKERS")),
		KafkaTopic:     getEnvDefault("EXCHANGE_KAFKA_TOPIC", "cleared-bids"),
		LogLevel:       getEnvDefault("LOG_LEVEL", "info"),
	}

	if cfg.Network != "tcp" && cfg.Network != "vsock" {
		return Config{}, fmt.Errorf("unsupported EXCHANGE_NETWORK %q (must be tcp or vsock)", cfg.Network)
	}

	return cfg, nil
}

// NewLogger builds a production JSON logger at the configured level.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = level
	return zapConfig.Build()
}

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	return intValue, nil
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
