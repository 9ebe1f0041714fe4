package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Log LogConfig `yaml:"log"`

	Database DatabaseConfig `yaml:"database"`

	API struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"api"`

	Auth struct {
		UserHeader string `yaml:"user_header"` // 网关注入的已认证用户ID
	} `yaml:"auth"`

	RateLimit struct {
		Enabled bool   `yaml:"enabled"`
		Rate    string `yaml:"rate"`  // 如 "300-M"
		Store   string `yaml:"store"` // memory | redis
	} `yaml:"rate_limit"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	NATS struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`

	Geocoder struct {
		Provider  string        `yaml:"provider"` // nominatim | none
		BaseURL   string        `yaml:"base_url"`
		UserAgent string        `yaml:"user_agent"`
		Timeout   time.Duration `yaml:"timeout"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
	} `yaml:"geocoder"`

	Notifier struct {
		Driver      string        `yaml:"driver"` // log | webhook
		WebhookURL  string        `yaml:"webhook_url"`
		From        string        `yaml:"from"`
		Timeout     time.Duration `yaml:"timeout"`
		Concurrency int           `yaml:"concurrency"`
	} `yaml:"notifier"`

	Reconciler struct {
		Enabled     bool          `yaml:"enabled"`
		Schedule    string        `yaml:"schedule"`
		MaxAge      time.Duration `yaml:"max_age"`
		MaxAttempts int           `yaml:"max_attempts"`
		BatchSize   int           `yaml:"batch_size"`
		ClaimLease  time.Duration `yaml:"claim_lease"` // 投递租约，多实例不会重复发送
	} `yaml:"reconciler"`

	Monitor struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"monitor"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // json | console
	File       string `yaml:"file"`   // 为空时只输出到 stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // postgres | sqlite
	DSN             string        `yaml:"dsn"`    // 设置后优先于 host/port 等字段
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Debug           bool          `yaml:"debug"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "sqlite" {
		return ":memory:"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Default 默认配置
func Default() *Config {
	var cfg Config
	cfg.App.Name = "sosradar"
	cfg.App.Env = "dev"

	cfg.Log = LogConfig{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30}

	cfg.Database = DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		DBName:          "sos",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	cfg.API.Port = "4000"
	cfg.API.ReadTimeout = 10 * time.Second
	cfg.API.WriteTimeout = 30 * time.Second
	cfg.API.ShutdownTimeout = 5 * time.Second

	cfg.Auth.UserHeader = "X-User-ID"

	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Rate = "300-M"
	cfg.RateLimit.Store = "memory"

	cfg.Redis.Addr = "localhost:6379"

	cfg.NATS.Stream = "SOS_STREAM"

	cfg.Geocoder.Provider = "nominatim"
	cfg.Geocoder.BaseURL = "https://nominatim.openstreetmap.org"
	cfg.Geocoder.UserAgent = "sosradar/1.0"
	cfg.Geocoder.Timeout = 3 * time.Second
	cfg.Geocoder.CacheTTL = time.Hour

	cfg.Notifier.Driver = "log"
	cfg.Notifier.From = "sos-noreply@localhost"
	cfg.Notifier.Timeout = 5 * time.Second
	cfg.Notifier.Concurrency = 8

	cfg.Reconciler.Enabled = true
	cfg.Reconciler.Schedule = "@every 1m"
	cfg.Reconciler.MaxAge = 24 * time.Hour
	cfg.Reconciler.MaxAttempts = 10
	cfg.Reconciler.BatchSize = 200
	cfg.Reconciler.ClaimLease = time.Minute

	cfg.Monitor.Schedule = "@every 30s"

	return &cfg
}

// LoadConfig 从文件加载配置，path 为空时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	config := Default()

	if path != "" {
		// 读取配置文件
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}

		// 解析YAML
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// 环境变量覆盖
	overrideFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Notifier.Driver {
	case "log":
	case "webhook":
		if c.Notifier.WebhookURL == "" {
			return fmt.Errorf("notifier.webhook_url 不能为空")
		}
	default:
		return fmt.Errorf("不支持的通知驱动: %q", c.Notifier.Driver)
	}
	switch c.Geocoder.Provider {
	case "nominatim", "none":
	default:
		return fmt.Errorf("不支持的地理编码服务: %q", c.Geocoder.Provider)
	}
	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的限流存储: %q", c.RateLimit.Store)
	}
	if c.Notifier.Timeout <= 0 || c.Geocoder.Timeout <= 0 {
		return fmt.Errorf("notifier.timeout 和 geocoder.timeout 必须大于0")
	}
	if c.Notifier.Concurrency <= 0 {
		return fmt.Errorf("notifier.concurrency 必须大于0")
	}
	if c.Auth.UserHeader == "" {
		return fmt.Errorf("auth.user_header 不能为空")
	}
	return nil
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	// 应用名称
	if env := os.Getenv("APP_NAME"); env != "" {
		config.App.Name = env
	}

	// 环境
	if env := os.Getenv("APP_ENV"); env != "" {
		config.App.Env = env
	}

	// 日志
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		config.Log.Level = env
	}
	if env := os.Getenv("LOG_FORMAT"); env != "" {
		config.Log.Format = env
	}

	// 数据库配置
	if env := os.Getenv("DB_DRIVER"); env != "" {
		config.Database.Driver = env
	}
	if env := os.Getenv("DB_DSN"); env != "" {
		config.Database.DSN = env
	}
	if env := os.Getenv("DB_HOST"); env != "" {
		config.Database.Host = env
	}
	if env := os.Getenv("DB_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			config.Database.Port = port
		}
	}
	if env := os.Getenv("DB_USER"); env != "" {
		config.Database.User = env
	}
	if env := os.Getenv("DB_PASSWORD"); env != "" {
		config.Database.Password = env
	}
	if env := os.Getenv("DB_NAME"); env != "" {
		config.Database.DBName = env
	}
	if env := os.Getenv("DB_SSLMODE"); env != "" {
		config.Database.SSLMode = env
	}

	// API配置
	if env := os.Getenv("API_PORT"); env != "" {
		config.API.Port = env
	} else if env := os.Getenv("PORT"); env != "" {
		config.API.Port = env
	}

	// Redis
	if env := os.Getenv("REDIS_ADDR"); env != "" {
		config.Redis.Addr = env
	}
	if env := os.Getenv("REDIS_PASSWORD"); env != "" {
		config.Redis.Password = env
	}

	// NATS配置
	if env := os.Getenv("NATS_URL"); env != "" {
		config.NATS.URL = env
	}

	// 通知
	if env := os.Getenv("NOTIFIER_DRIVER"); env != "" {
		config.Notifier.Driver = env
	}
	if env := os.Getenv("NOTIFIER_WEBHOOK_URL"); env != "" {
		config.Notifier.WebhookURL = env
	}

	// 地理编码
	if env := os.Getenv("GEOCODER_PROVIDER"); env != "" {
		config.Geocoder.Provider = env
	}
	if env := os.Getenv("GEOCODER_BASE_URL"); env != "" {
		config.Geocoder.BaseURL = env
	}
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}
