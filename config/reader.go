package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ConfigSchema struct {
	Databases struct {
		Driver     string     `yaml:"driver"` // postgres | sqlite
		SQLitePath string     `yaml:"sqlite_path"`
		Master     DBConfig   `yaml:"master"`
		Replicas   []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Redis struct {
		Host              string `yaml:"host"`
		Port              int    `yaml:"port"`
		Password          string `yaml:"password"`
		DB                int    `yaml:"db"`
		ProfileTTLSeconds int    `yaml:"profile_ttl_seconds"`
	} `yaml:"redis"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Backend struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"backend"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		// AllowHeaderIdentity включает X-User-ID (только для локальной разработки и тестов)
		AllowHeaderIdentity bool `yaml:"allow_header_identity"`
	} `yaml:"auth"`
	Blob struct {
		Dir         string `yaml:"dir"`
		BaseURL     string `yaml:"base_url"`
		MaxUploadMB int    `yaml:"max_upload_mb"`
	} `yaml:"blob"`
	Sync struct {
		ConversationPollSeconds int `yaml:"conversation_poll_seconds"`
		RecentPollSeconds       int `yaml:"recent_poll_seconds"`
		DefaultPageSize         int `yaml:"default_page_size"`
		MaxPageSize             int `yaml:"max_page_size"`
	} `yaml:"sync"`
	RateLimit struct {
		SendRPS   float64 `yaml:"send_rps"`
		SendBurst int     `yaml:"send_burst"`
	} `yaml:"rate_limit"`
	Logs struct {
		Level string `yaml:"level"`
	} `yaml:"logs"`
}

var AppConfig *ConfigSchema

// LoadConfig читает yaml-конфиг, накладывает переменные окружения и проверяет результат
func LoadConfig(filePath string) error {
	// .env не обязателен
	_ = godotenv.Load()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	conf, err := Parse(data)
	if err != nil {
		return err
	}
	AppConfig = conf
	return nil
}

// Parse разбирает конфиг из байтов. Используется и в тестах
func Parse(data []byte) (*ConfigSchema, error) {
	conf := &ConfigSchema{}
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	conf.applyEnv()
	conf.Defaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *ConfigSchema) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.Databases.Master.Host, "DB_HOST")
	setInt(&c.Databases.Master.Port, "DB_PORT")
	setString(&c.Databases.Master.User, "DB_USER")
	setString(&c.Databases.Master.Password, "DB_PASSWORD")
	setString(&c.Databases.Master.DBName, "DB_NAME")
	setString(&c.Redis.Host, "REDIS_HOST")
	setInt(&c.Redis.Port, "REDIS_PORT")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Blob.Dir, "BLOB_DIR")
}

// Defaults заполняет незаданные значения
func (c *ConfigSchema) Defaults() {
	if c.Databases.Driver == "" {
		c.Databases.Driver = "postgres"
	}
	if c.Databases.Master.Port == 0 {
		c.Databases.Master.Port = 5432
	}
	if c.Databases.SQLitePath == "" {
		c.Databases.SQLitePath = "messenger.db"
	}
	if c.Redis.ProfileTTLSeconds == 0 {
		c.Redis.ProfileTTLSeconds = 300
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "messaging_events"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 8080
	}
	if c.Blob.Dir == "" {
		c.Blob.Dir = "public/assets/messages"
	}
	if c.Blob.BaseURL == "" {
		c.Blob.BaseURL = "/assets/messages"
	}
	if c.Blob.MaxUploadMB == 0 {
		c.Blob.MaxUploadMB = 5
	}
	if c.Sync.ConversationPollSeconds == 0 {
		c.Sync.ConversationPollSeconds = 5
	}
	if c.Sync.RecentPollSeconds == 0 {
		c.Sync.RecentPollSeconds = 30
	}
	if c.Sync.DefaultPageSize == 0 {
		c.Sync.DefaultPageSize = 50
	}
	if c.Sync.MaxPageSize == 0 {
		c.Sync.MaxPageSize = 100
	}
	if c.RateLimit.SendRPS == 0 {
		c.RateLimit.SendRPS = 5
	}
	if c.RateLimit.SendBurst == 0 {
		c.RateLimit.SendBurst = 10
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
}

func (c *ConfigSchema) Validate() error {
	switch c.Databases.Driver {
	case "postgres":
		if c.Databases.Master.Host == "" {
			return fmt.Errorf("master database configuration is missing")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Databases.Driver)
	}

	if c.Auth.JWTSecret == "" && !c.Auth.AllowHeaderIdentity {
		return fmt.Errorf("auth.jwt_secret is required unless allow_header_identity is enabled")
	}

	for name, v := range map[string]int{
		"sync.conversation_poll_seconds": c.Sync.ConversationPollSeconds,
		"sync.recent_poll_seconds":       c.Sync.RecentPollSeconds,
	} {
		if v < 1 || v > 300 {
			return fmt.Errorf("%s must be within 1..300, got %d", name, v)
		}
	}

	if c.Sync.DefaultPageSize > c.Sync.MaxPageSize {
		return fmt.Errorf("sync.default_page_size (%d) exceeds sync.max_page_size (%d)",
			c.Sync.DefaultPageSize, c.Sync.MaxPageSize)
	}
	return nil
}

// RedisAddr возвращает host:port для клиента redis; пустая строка - redis не настроен
func (c *ConfigSchema) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	port := c.Redis.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, port)
}
