// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database  DatabaseConfig      `json:"database"`
	Server    ServerConfig        `json:"server"`
	Redis     RedisConfig         `json:"redis"`
	Scheduler SchedulerConfig     `json:"scheduler"`
	SMS       SMSConfig           `json:"sms"`
	Email     EmailProviderConfig `json:"email"`
	Logging   LoggingConfig       `json:"logging"`
	Metrics   MetricsConfig       `json:"metrics"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type RedisConfig struct {
	URL      string `json:"url"`
	DB       int    `json:"db"`
	Password string `json:"password"`
}

type SchedulerConfig struct {
	SweepInterval   time.Duration `json:"sweep_interval"`
	BatchSize       int           `json:"batch_size"`
	WorkerCount     int           `json:"worker_count"`
	ProviderTimeout time.Duration `json:"provider_timeout"`
}

// SMSConfig carries the configured SMS gateways. Primary and Secondary map
// to the provider names routing configs reference.
type SMSConfig struct {
	Primary   SMSProviderConfig `json:"primary"`
	Secondary SMSProviderConfig `json:"secondary"`
}

// SMSProviderConfig is one HTTP SMS gateway account
type SMSProviderConfig struct {
	Name           string        `json:"name"`
	APIDomain      string        `json:"api_domain"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	SourceNumber   string        `json:"source_number"`
	CostPerMessage float64       `json:"cost_per_message"`
	Timeout        time.Duration `json:"timeout"`
}

// Enabled reports whether the gateway is configured at all
func (c SMSProviderConfig) Enabled() bool {
	return c.APIDomain != "" && c.APIDomain != "mock"
}

// EmailProviderConfig is one SMTP relay account
type EmailProviderConfig struct {
	Name           string        `json:"name"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	FromEmail      string        `json:"from_email"`
	FromName       string        `json:"from_name"`
	CostPerMessage float64       `json:"cost_per_message"`
	Timeout        time.Duration `json:"timeout"`
}

// Enabled reports whether the relay is configured at all
func (c EmailProviderConfig) Enabled() bool {
	return c.Host != ""
}

type LoggingConfig struct {
	Level    string `json:"level"`  // debug, info, warn, error
	Output   string `json:"output"` // stdout, file, both
	FilePath string `json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "courier"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnvString("REDIS_URL", "redis://localhost:6379"),
			DB:       getEnvInt("REDIS_DB", 0),
			Password: getEnvString("REDIS_PASSWORD", ""),
		},
		Scheduler: SchedulerConfig{
			SweepInterval:   getEnvDuration("SCHEDULER_SWEEP_INTERVAL", 15*time.Second),
			BatchSize:       getEnvInt("SCHEDULER_BATCH_SIZE", 200),
			WorkerCount:     getEnvInt("SCHEDULER_WORKER_COUNT", 16),
			ProviderTimeout: getEnvDuration("SCHEDULER_PROVIDER_TIMEOUT", 30*time.Second),
		},
		SMS: SMSConfig{
			Primary: SMSProviderConfig{
				Name:           getEnvString("SMS_PRIMARY_NAME", "sms-primary"),
				APIDomain:      getEnvString("SMS_PRIMARY_API_DOMAIN", "mock"),
				Username:       getEnvString("SMS_PRIMARY_USERNAME", ""),
				Password:       getEnvString("SMS_PRIMARY_PASSWORD", ""),
				SourceNumber:   getEnvString("SMS_PRIMARY_SOURCE_NUMBER", ""),
				CostPerMessage: getEnvFloat("SMS_PRIMARY_COST_PER_MESSAGE", 0.01),
				Timeout:        getEnvDuration("SMS_PRIMARY_TIMEOUT", 30*time.Second),
			},
			Secondary: SMSProviderConfig{
				Name:           getEnvString("SMS_SECONDARY_NAME", "sms-secondary"),
				APIDomain:      getEnvString("SMS_SECONDARY_API_DOMAIN", ""),
				Username:       getEnvString("SMS_SECONDARY_USERNAME", ""),
				Password:       getEnvString("SMS_SECONDARY_PASSWORD", ""),
				SourceNumber:   getEnvString("SMS_SECONDARY_SOURCE_NUMBER", ""),
				CostPerMessage: getEnvFloat("SMS_SECONDARY_COST_PER_MESSAGE", 0.008),
				Timeout:        getEnvDuration("SMS_SECONDARY_TIMEOUT", 30*time.Second),
			},
		},
		Email: EmailProviderConfig{
			Name:           getEnvString("EMAIL_NAME", "email-smtp"),
			Host:           getEnvString("EMAIL_HOST", ""),
			Port:           getEnvInt("EMAIL_PORT", 587),
			Username:       getEnvString("EMAIL_USERNAME", ""),
			Password:       getEnvString("EMAIL_PASSWORD", ""),
			FromEmail:      getEnvString("EMAIL_FROM_EMAIL", "noreply@relaymark.io"),
			FromName:       getEnvString("EMAIL_FROM_NAME", "Relaymark"),
			CostPerMessage: getEnvFloat("EMAIL_COST_PER_MESSAGE", 0.0005),
			Timeout:        getEnvDuration("EMAIL_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:    getEnvString("LOG_LEVEL", "info"),
			Output:   getEnvString("LOG_OUTPUT", "both"),
			FilePath: getEnvString("LOG_FILE_PATH", "data/courier.log"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ProviderCosts maps configured provider names to per-message cost, fed to
// the routing resolver for least-cost ordering.
func (cfg *ProductionConfig) ProviderCosts() map[string]float64 {
	costs := map[string]float64{
		cfg.SMS.Primary.Name: cfg.SMS.Primary.CostPerMessage,
	}
	if cfg.SMS.Secondary.Enabled() {
		costs[cfg.SMS.Secondary.Name] = cfg.SMS.Secondary.CostPerMessage
	}
	if cfg.Email.Enabled() {
		costs[cfg.Email.Name] = cfg.Email.CostPerMessage
	}
	return costs
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate scheduler configuration
	if cfg.Scheduler.SweepInterval <= 0 {
		errors = append(errors, "SCHEDULER_SWEEP_INTERVAL must be positive")
	}
	if cfg.Scheduler.BatchSize <= 0 {
		errors = append(errors, "SCHEDULER_BATCH_SIZE must be positive")
	}
	if cfg.Scheduler.WorkerCount <= 0 {
		errors = append(errors, "SCHEDULER_WORKER_COUNT must be positive")
	}
	if cfg.Scheduler.ProviderTimeout <= 0 {
		errors = append(errors, "SCHEDULER_PROVIDER_TIMEOUT must be positive")
	}

	// Validate SMS configuration if enabled
	if cfg.SMS.Primary.Enabled() {
		if cfg.SMS.Primary.Username == "" {
			errors = append(errors, "SMS_PRIMARY_USERNAME is required for SMS provider")
		}
		if cfg.SMS.Primary.SourceNumber == "" {
			errors = append(errors, "SMS_PRIMARY_SOURCE_NUMBER is required for SMS provider")
		}
	}
	if cfg.SMS.Secondary.Enabled() {
		if cfg.SMS.Secondary.Username == "" {
			errors = append(errors, "SMS_SECONDARY_USERNAME is required for SMS provider")
		}
		if cfg.SMS.Secondary.SourceNumber == "" {
			errors = append(errors, "SMS_SECONDARY_SOURCE_NUMBER is required for SMS provider")
		}
	}

	// Validate email configuration if enabled
	if cfg.Email.Enabled() {
		if cfg.Email.Username == "" {
			errors = append(errors, "EMAIL_USERNAME is required for email configuration")
		}
		if cfg.Email.FromEmail == "" {
			errors = append(errors, "EMAIL_FROM_EMAIL is required for email configuration")
		}
	}

	// Validate redis configuration
	if cfg.Redis.URL == "" {
		errors = append(errors, "REDIS_URL is required")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
