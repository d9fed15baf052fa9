package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/infra/setup"
)

// 预览图存储后端
const (
	PreviewBackendNone   = "none"
	PreviewBackendMemory = "memory"
	PreviewBackendRedis  = "redis"
	PreviewBackendS3     = "s3"
)

// Config 应用配置。加载顺序：默认值 -> CONFIG_FILE 指向的 TOML 文件 -> .env -> 环境变量，后者覆盖前者。
type Config struct {
	AppEnv            string        `toml:"app_env"`
	ServerPort        string        `toml:"server_port"`
	LogLevel          string        `toml:"log_level"`
	JWTSecret         string        `toml:"jwt_secret"`
	TokenTTL          time.Duration `toml:"token_ttl"`
	CORSAllowedOrigin string        `toml:"cors_allowed_origin"`

	DBDriver      string `toml:"db_driver"`
	DBDSN         string `toml:"db_dsn"`
	DBHost        string `toml:"db_host"`
	DBPort        string `toml:"db_port"`
	DBUser        string `toml:"db_user"`
	DBPassword    string `toml:"db_password"`
	DBName        string `toml:"db_name"`
	DBAutoMigrate bool   `toml:"db_auto_migrate"`

	RedisAddr     string `toml:"redis_addr"` // 为空时以单机模式运行
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"redis_key_prefix"`

	RateLimitMax    int           `toml:"rate_limit_max"`
	RateLimitWindow time.Duration `toml:"rate_limit_window"`
	PresenceWindow  time.Duration `toml:"presence_window"`

	PreviewBackend    string        `toml:"preview_backend"`
	PreviewWidth      int           `toml:"preview_width"`
	PreviewHeight     int           `toml:"preview_height"`
	PreviewTTL        time.Duration `toml:"preview_ttl"`
	PreviewDelay      time.Duration `toml:"preview_delay"`
	S3Bucket          string        `toml:"s3_bucket"`
	S3Prefix          string        `toml:"s3_prefix"`
	S3Region          string        `toml:"s3_region"`
	S3Endpoint        string        `toml:"s3_endpoint"`
	EmojiFont         string        `toml:"emoji_font"`
	WorkerConcurrency int           `toml:"worker_concurrency"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AppEnv:            "development",
		ServerPort:        "8080",
		LogLevel:          "info",
		TokenTTL:          24 * time.Hour,
		CORSAllowedOrigin: "http://localhost:3000",
		DBDriver:          setup.DriverPostgres,
		DBAutoMigrate:     true,
		KeyPrefix:         "cc:",
		RateLimitMax:      100,
		RateLimitWindow:   time.Second,
		PresenceWindow:    5 * time.Minute,
		PreviewBackend:    PreviewBackendNone,
		PreviewWidth:      1200,
		PreviewHeight:     800,
		PreviewTTL:        24 * time.Hour,
		PreviewDelay:      2 * time.Second,
		S3Region:          "us-east-1",
		S3Prefix:          "previews/",
		WorkerConcurrency: 4,
	}
}

// LoadConfig 按顺序加载配置并校验
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// .env 不覆盖已存在的环境变量，文件不存在时忽略
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"APP_ENV":             &c.AppEnv,
		"SERVER_PORT":         &c.ServerPort,
		"LOG_LEVEL":           &c.LogLevel,
		"JWT_SECRET":          &c.JWTSecret,
		"CORS_ALLOWED_ORIGIN": &c.CORSAllowedOrigin,
		"DB_DRIVER":           &c.DBDriver,
		"DB_DSN":              &c.DBDSN,
		"DB_HOST":             &c.DBHost,
		"DB_PORT":             &c.DBPort,
		"DB_USER":             &c.DBUser,
		"DB_PASSWORD":         &c.DBPassword,
		"DB_NAME":             &c.DBName,
		"REDIS_ADDR":          &c.RedisAddr,
		"REDIS_PASSWORD":      &c.RedisPassword,
		"REDIS_KEY_PREFIX":    &c.KeyPrefix,
		"PREVIEW_BACKEND":     &c.PreviewBackend,
		"S3_BUCKET":           &c.S3Bucket,
		"S3_PREFIX":           &c.S3Prefix,
		"S3_REGION":           &c.S3Region,
		"S3_ENDPOINT":         &c.S3Endpoint,
		"EMOJI_FONT":          &c.EmojiFont,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":           &c.RedisDB,
		"RATE_LIMIT_MAX":     &c.RateLimitMax,
		"PREVIEW_WIDTH":      &c.PreviewWidth,
		"PREVIEW_HEIGHT":     &c.PreviewHeight,
		"WORKER_CONCURRENCY": &c.WorkerConcurrency,
	}
	for name, field := range ints {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("environment variable %s must be an integer: %w", name, err)
			}
			*field = n
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":         &c.TokenTTL,
		"RATE_LIMIT_WINDOW": &c.RateLimitWindow,
		"PRESENCE_WINDOW":   &c.PresenceWindow,
		"PREVIEW_TTL":       &c.PreviewTTL,
		"PREVIEW_DELAY":     &c.PreviewDelay,
	}
	for name, field := range durations {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("environment variable %s must be a duration: %w", name, err)
			}
			*field = d
		}
	}

	if v, ok := os.LookupEnv("DB_AUTO_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("environment variable DB_AUTO_MIGRATE must be a boolean: %w", err)
		}
		c.DBAutoMigrate = b
	}
	return nil
}

// Validate 检查必填项和取值范围，非法的日志级别回退为 info
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	switch c.DBDriver {
	case setup.DriverPostgres, setup.DriverMySQL, setup.DriverMemory:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	c.PreviewBackend = strings.ToLower(c.PreviewBackend)
	switch c.PreviewBackend {
	case "", PreviewBackendNone:
		c.PreviewBackend = PreviewBackendNone
	case PreviewBackendMemory:
	case PreviewBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("PREVIEW_BACKEND=redis requires REDIS_ADDR")
		}
	case PreviewBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("PREVIEW_BACKEND=s3 requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unsupported PREVIEW_BACKEND %q", c.PreviewBackend)
	}

	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.PresenceWindow <= 0 {
		return fmt.Errorf("PRESENCE_WINDOW must be positive")
	}
	if c.RedisAddr != "" && (c.RateLimitMax <= 0 || c.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", c.LogLevel)
		c.LogLevel = "info"
	}
	return nil
}

// DBConfig 转换为 setup 包的数据库参数
func (c *Config) DBConfig() setup.DBConfig {
	return setup.DBConfig{
		Driver:   c.DBDriver,
		DSN:      c.DBDSN,
		User:     c.DBUser,
		Password: c.DBPassword,
		Host:     c.DBHost,
		Port:     c.DBPort,
		Name:     c.DBName,
	}
}
