package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Store       StoreConfig
	Database    DatabaseConfig
	Maintenance MaintenanceConfig
	Telemetry   TelemetryConfig
}

// StoreConfig selects the ledger store backend.
type StoreConfig struct {
	// Driver is one of "memory", "csv" or "postgres".
	Driver           string
	AccountsPath     string
	TransactionsPath string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MaintenanceConfig struct {
	WorkerCount int
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

var storeDrivers = map[string]struct{}{
	"memory":   {},
	"csv":      {},
	"postgres": {},
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	dbPort, err := getIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	workers, err := getIntEnv("MAINTENANCE_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: StoreConfig{
			Driver:           strings.ToLower(getEnv("STORE_DRIVER", "csv")),
			AccountsPath:     getEnv("STORE_ACCOUNTS_PATH", "accounts.csv"),
			TransactionsPath: getEnv("STORE_TRANSACTIONS_PATH", "transactions.csv"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "minibank"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "minibank"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Maintenance: MaintenanceConfig{
			WorkerCount: workers,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "minibank"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("OTEL_METRICS_PORT", "9464"),
		},
	}

	if _, ok := storeDrivers[cfg.Store.Driver]; !ok {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q (expected memory, csv or postgres)", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "csv" {
		if cfg.Store.AccountsPath == "" || cfg.Store.TransactionsPath == "" {
			return nil, fmt.Errorf("STORE_ACCOUNTS_PATH and STORE_TRANSACTIONS_PATH are required for the csv driver")
		}
	}
	if cfg.Maintenance.WorkerCount < 1 {
		return nil, fmt.Errorf("MAINTENANCE_WORKERS must be at least 1")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "":
		return defaultValue
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
