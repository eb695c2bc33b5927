package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Бэкенды хранилища учетных данных
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Browser  BrowserConfig
	Security SecurityConfig
	Manager  ManagerConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig - выбор бэкенда хранилища учетных данных
type StorageConfig struct {
	// Backend: "file" (один зашифрованный JSON) или "postgres"
	Backend string

	// CredentialsFile - путь к файлу для file-бэкенда
	CredentialsFile string
}

// DatabaseConfig - настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// BrowserConfig - настройки браузерной автоматизации
type BrowserConfig struct {
	// Headless выключают только при отладке селекторов
	Headless bool

	NavTimeout  time.Duration
	StepTimeout time.Duration
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// KeyFile - путь к файлу мастер-ключа шифрования (создается при
	// первом запуске, если отсутствует)
	KeyFile string

	// APIKeyHash - bcrypt хэш ключа API. Пустой = аутентификация
	// выключена (только для локальной разработки)
	APIKeyHash string
}

// ManagerConfig - настройки менеджера платформ
type ManagerConfig struct {
	// InterfaceTTL - срок жизни кэша анализа интерфейса
	InterfaceTTL time.Duration

	// SweepSchedule - cron-выражение очистки протухших кэшей
	SweepSchedule string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	// .env удобен в разработке; в продакшене переменные приходят из среды
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Storage: StorageConfig{
			Backend:         getEnv("STORAGE_BACKEND", StorageFile),
			CredentialsFile: getEnv("CREDENTIALS_FILE", "data/credentials.json"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "tradebridge"),
			User:     getEnv("DB_USER", "tradebridge"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Browser: BrowserConfig{
			Headless:    getEnvAsBool("BROWSER_HEADLESS", true),
			NavTimeout:  getEnvAsDuration("BROWSER_NAV_TIMEOUT", 30*time.Second),
			StepTimeout: getEnvAsDuration("BROWSER_STEP_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			KeyFile:    getEnv("KEY_FILE", "data/master.key"),
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},
		Manager: ManagerConfig{
			InterfaceTTL:  getEnvAsDuration("INTERFACE_TTL", 30*time.Minute),
			SweepSchedule: getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.CredentialsFile == "" {
			return fmt.Errorf("CREDENTIALS_FILE is required for file storage")
		}
	case StoragePostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q",
			StorageFile, StoragePostgres, c.Storage.Backend)
	}

	if c.Security.KeyFile == "" {
		return fmt.Errorf("KEY_FILE is required for credential encryption")
	}

	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("BROWSER_NAV_TIMEOUT must be positive, got %v", c.Browser.NavTimeout)
	}
	if c.Browser.StepTimeout <= 0 {
		return fmt.Errorf("BROWSER_STEP_TIMEOUT must be positive, got %v", c.Browser.StepTimeout)
	}
	if c.Manager.InterfaceTTL < 0 {
		return fmt.Errorf("INTERFACE_TTL cannot be negative, got %v", c.Manager.InterfaceTTL)
	}

	return nil
}

// Addr возвращает адрес прослушивания HTTP сервера
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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
