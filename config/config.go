package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ops       OpsConfig       `mapstructure:"ops"`
	DB        DBConfig        `mapstructure:"db"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Session   SessionConfig   `mapstructure:"session"`
	Security  SecurityConfig  `mapstructure:"security"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// OpsConfig - служебный сервер (health, metrics)
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

type DBConfig struct {
	Driver         string        `mapstructure:"driver"` // postgres или memory
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslmode"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// DSN возвращает строку подключения для gorm
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL возвращает URL подключения для golang-migrate
func (c DBConfig) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type SessionConfig struct {
	// ExpirationTime - время жизни сессии и токена
	ExpirationTime     time.Duration `mapstructure:"expiration"`
	RecentTransactions int           `mapstructure:"recent_transactions"`
}

type SecurityConfig struct {
	MaxPinAttempts    int           `mapstructure:"max_pin_attempts"`
	CardBlockDuration time.Duration `mapstructure:"card_block_duration"`
	CardHMACKey       string        `mapstructure:"card_hmac_key"` // Ключ для HMAC номера карты
}

// LimitsConfig содержит лимиты по умолчанию; карта может переопределить любой из них
type LimitsConfig struct {
	PerTransaction   float64 `mapstructure:"per_transaction"`
	DailyWithdrawal  float64 `mapstructure:"daily_withdrawal"`
	DailyTransaction float64 `mapstructure:"daily_transaction"`
	TimeZone         string  `mapstructure:"timezone"`
}

// Location возвращает часовой пояс, по которому считаются календарные сутки
func (c LimitsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	General     int           `mapstructure:"general"`
	Auth        int           `mapstructure:"auth"`
	Transaction int           `mapstructure:"transaction"`
	Session     int           `mapstructure:"session"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json или text
}

type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	SessionSweepSpec string `mapstructure:"session_sweep"`
	DailyResetSpec   string `mapstructure:"daily_reset"`
}

type SeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// NewConfig создает новый экземпляр конфигурации из значений по умолчанию,
// необязательного файла и переменных окружения ATM_*
func NewConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ATM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("ATM_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию (без окружения)
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Настройки сервера
	v.SetDefault("server.port", 8848)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("ops.port", 9090)

	// Настройки базы данных
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "atm_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations_path", "file://migrations")
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("db.query_timeout", 5*time.Second)
	v.SetDefault("db.max_retries", 3)

	// Настройки JWT
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.issuer", "atm-backend")
	v.SetDefault("jwt.audience", "atm-client")

	// Сессии
	v.SetDefault("session.expiration", 5*time.Minute)
	v.SetDefault("session.recent_transactions", 10)

	// Безопасность карт
	v.SetDefault("security.max_pin_attempts", 3)
	v.SetDefault("security.card_block_duration", 24*time.Hour)
	v.SetDefault("security.card_hmac_key", "your-card-hmac-key-here")

	// Лимиты
	v.SetDefault("limits.per_transaction", 500.0)
	v.SetDefault("limits.daily_withdrawal", 1000.0)
	v.SetDefault("limits.daily_transaction", 2000.0)
	v.SetDefault("limits.timezone", "UTC")

	// Ограничение частоты запросов
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("ratelimit.general", 100)
	v.SetDefault("ratelimit.auth", 5)
	v.SetDefault("ratelimit.transaction", 20)
	v.SetDefault("ratelimit.session", 10)

	// Настройки SMTP
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "atm-notifications@example.com")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.session_sweep", "@every 1m")
	v.SetDefault("scheduler.daily_reset", "0 0 * * *")

	v.SetDefault("seed.enabled", false)
}

// Validate проверяет значения, без которых ядро не может работать корректно
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return errors.New("jwt secret is required (ATM_JWT_SECRET)")
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported jwt algorithm %q", c.JWT.Algorithm)
	}
	if c.Session.ExpirationTime <= 0 {
		return errors.New("session expiration must be positive")
	}
	if c.Security.MaxPinAttempts <= 0 {
		return errors.New("max pin attempts must be positive")
	}
	if c.Security.CardBlockDuration <= 0 {
		return errors.New("card block duration must be positive")
	}
	if c.Limits.PerTransaction <= 0 || c.Limits.DailyWithdrawal <= 0 || c.Limits.DailyTransaction <= 0 {
		return errors.New("transaction limits must be positive")
	}
	if _, err := time.LoadLocation(c.Limits.TimeZone); err != nil {
		return fmt.Errorf("invalid limits timezone: %w", err)
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	return nil
}
