package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию слоя интеграции
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Vault    VaultConfig
	Sync     SyncConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// VaultConfig - настройки хранилища секретов
type VaultConfig struct {
	Passphrase string // из нее выводится AES-ключ (scrypt)
	Salt       string
}

// SyncConfig - настройки синхронизатора аккаунтов
type SyncConfig struct {
	// Каждый удаленный вызов коннектора несет этот таймаут.
	// Таймаут трактуется как сетевая ошибка соответствующей фазы.
	RequestTimeout time.Duration

	// SweepInterval - период фонового обхода всех подключений
	SweepInterval time.Duration

	// SweepWorkers - размер пула воркеров обхода.
	// Ограничивает параллелизм, чтобы не упираться в rate limit площадок.
	SweepWorkers int

	// FreshnessWindow - возраст снимка, после которого подключение
	// помечается как stale в выдаче фасада
	FreshnessWindow time.Duration

	// VenueRateLimit - запросов в секунду на одну площадку
	VenueRateLimit float64
	VenueRateBurst int
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "brokerlink"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Vault: VaultConfig{
			Passphrase: getEnv("VAULT_PASSPHRASE", ""),
			Salt:       getEnv("VAULT_SALT", "brokerlink-vault-v1"),
		},
		Sync: SyncConfig{
			RequestTimeout:  getEnvAsDuration("SYNC_REQUEST_TIMEOUT", 15*time.Second),
			SweepInterval:   getEnvAsDuration("SYNC_SWEEP_INTERVAL", 5*time.Minute),
			SweepWorkers:    getEnvAsInt("SYNC_SWEEP_WORKERS", 8),
			FreshnessWindow: getEnvAsDuration("SYNC_FRESHNESS_WINDOW", 15*time.Minute),
			VenueRateLimit:  getEnvAsFloat("VENUE_RATE_LIMIT", 5),
			VenueRateBurst:  getEnvAsInt("VENUE_RATE_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// VAULT_PASSPHRASE обязателен: из него выводится ключ шифрования credentials
	if c.Vault.Passphrase == "" {
		return fmt.Errorf("VAULT_PASSPHRASE is required for encrypting venue credentials")
	}

	if len(c.Vault.Passphrase) < 16 {
		return fmt.Errorf("VAULT_PASSPHRASE must be at least 16 characters, got %d", len(c.Vault.Passphrase))
	}

	if c.Vault.Passphrase == "change-me-in-production" {
		return fmt.Errorf("VAULT_PASSPHRASE must be changed from default value in production")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Таймаут удаленных вызовов в рекомендованных пределах
	if c.Sync.RequestTimeout < time.Second {
		return fmt.Errorf("SYNC_REQUEST_TIMEOUT must be at least 1s, got %v", c.Sync.RequestTimeout)
	}

	if c.Sync.RequestTimeout > time.Minute {
		return fmt.Errorf("SYNC_REQUEST_TIMEOUT should not exceed 1m, got %v", c.Sync.RequestTimeout)
	}

	// Пул воркеров обязан быть ограничен
	if c.Sync.SweepWorkers < 1 {
		return fmt.Errorf("SYNC_SWEEP_WORKERS must be at least 1, got %d", c.Sync.SweepWorkers)
	}

	if c.Sync.SweepInterval <= 0 {
		return fmt.Errorf("SYNC_SWEEP_INTERVAL must be positive, got %v", c.Sync.SweepInterval)
	}

	if c.Sync.FreshnessWindow <= 0 {
		return fmt.Errorf("SYNC_FRESHNESS_WINDOW must be positive, got %v", c.Sync.FreshnessWindow)
	}

	if c.Sync.VenueRateLimit <= 0 {
		return fmt.Errorf("VENUE_RATE_LIMIT must be positive, got %v", c.Sync.VenueRateLimit)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
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
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
