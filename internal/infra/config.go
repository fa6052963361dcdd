package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config: корневая структура конфигурации обоих сервисов (API и дашборда).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Client    ClientConfig    `mapstructure:"client"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
}

// ServerConfig описывает настройки HTTP-сервера analytics-api.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr собирает адрес для http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DashboardConfig: HTTP-сервер дашборда и параметры отображения.
type DashboardConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionName   string        `mapstructure:"session_name"`
	MaxDailyPoint int           `mapstructure:"max_daily_points"`
	ChartWidth    int           `mapstructure:"chart_width"`
	ChartHeight   int           `mapstructure:"chart_height"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
}

func (d DashboardConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// StorageConfig выбирает источник событий: csv, sqlite или postgres.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	CSVPath     string `mapstructure:"csv_path"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (кэш ответов и Pub/Sub инвалидации).
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AuthConfig содержит пути к RSA ключам, настройки JWT и учетку оператора.
type AuthConfig struct {
	PublicKeyPath        string        `mapstructure:"public_key_path"`
	PrivateKeyPath       string        `mapstructure:"private_key_path"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	OperatorUsername     string        `mapstructure:"operator_username"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
	PublicKey            []byte
	PrivateKey           []byte
}

// ClientConfig: настройки клиента дашборда к analytics-api.
type ClientConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Attempts      uint          `mapstructure:"attempts"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`
}

// AnalyticsConfig: параметры расчета аналитики.
type AnalyticsConfig struct {
	// ReferenceDate подменяет "сегодня" при расчете окон (YYYY-MM-DD). Пусто, системные часы.
	ReferenceDate string `mapstructure:"reference_date"`
	TopUsersLimit int    `mapstructure:"top_users_limit"`
}

// IngestConfig: буфер пакетной записи событий.
type IngestConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadConfig инициализирует конфигурацию, объединяя .env, файл и ENV.
func LoadConfig() (*Config, error) {
	// 0. .env удобен локально; в контейнере его может и не быть
	_ = godotenv.Load()

	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из ENV (Docker/K8s) или из файла по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает заведомо нерабочие комбинации до старта сервисов.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "csv":
		if c.Storage.CSVPath == "" {
			return errors.New("config: storage.csv_path is required for csv driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("config: storage.sqlite_path is required for sqlite driver")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return errors.New("config: storage.database_url is required for postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Analytics.ReferenceDate != "" {
		if _, err := time.Parse("2006-01-02", c.Analytics.ReferenceDate); err != nil {
			return fmt.Errorf("config: analytics.reference_date: %w", err)
		}
	}
	return nil
}

// setDefaults задает значения по умолчанию. Пустые строки тоже объявлены:
// без ключа в viper AutomaticEnv не подхватит переменную при Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost:3000", "http://localhost:5173",
		"http://127.0.0.1:3000", "http://127.0.0.1:5173",
	})

	v.SetDefault("dashboard.host", "")
	v.SetDefault("dashboard.port", 8090)
	v.SetDefault("dashboard.session_secret", "")
	v.SetDefault("dashboard.read_timeout", 5*time.Second)
	v.SetDefault("dashboard.write_timeout", 15*time.Second)
	v.SetDefault("dashboard.session_name", "usage_dashboard")
	v.SetDefault("dashboard.max_daily_points", 30)
	v.SetDefault("dashboard.chart_width", 960)
	v.SetDefault("dashboard.chart_height", 420)
	v.SetDefault("dashboard.metrics_addr", ":9091")
	v.SetDefault("dashboard.result_ttl", 1*time.Minute)

	v.SetDefault("storage.driver", "csv")
	v.SetDefault("storage.csv_path", "./data/events.csv")
	v.SetDefault("storage.sqlite_path", "./data/analytics.db")
	v.SetDefault("storage.database_url", "")
	v.SetDefault("storage.max_conns", 15)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 1*time.Minute)

	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.operator_username", "")
	v.SetDefault("auth.operator_password_hash", "")
	v.SetDefault("auth.token_ttl", 1*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("client.base_url", "http://localhost:8080/api")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.attempts", 3)
	v.SetDefault("client.rate_limit", 50)
	v.SetDefault("client.rate_burst", 10)
	v.SetDefault("client.cb_max_requests", 3)
	v.SetDefault("client.cb_interval", 5*time.Second)
	v.SetDefault("client.cb_timeout", 30*time.Second)
	v.SetDefault("client.cb_max_failures", 5)

	v.SetDefault("analytics.reference_date", "")
	v.SetDefault("analytics.top_users_limit", 10)

	v.SetDefault("ingest.buffer_size", 10000)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.flush_interval", 500*time.Millisecond)
	v.SetDefault("ingest.rate_per_minute", 600)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("grpc.addr", ":50052")
}

// loadKeyResource: сначала PEM прямо из ENV, затем файл по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
