package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env       string          `mapstructure:"env"` // 环境: development, production
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenFGA   OpenFGAConfig   `mapstructure:"openfga"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Services  ServicesConfig  `mapstructure:"services"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// OpenFGAConfig OpenFGA 配置,APIURL 为空时不启用
type OpenFGAConfig struct {
	APIURL  string `mapstructure:"api_url"`
	StoreID string `mapstructure:"store_id"`
	ModelID string `mapstructure:"model_id"`
}

// AuthConfig 外部认证服务配置
type AuthConfig struct {
	Issuer       string   `mapstructure:"issuer"`
	JWKSURL      string   `mapstructure:"jwks_url"`
	Disabled     bool     `mapstructure:"disabled"` // 仅用于本地开发
	AdminRoles   []string `mapstructure:"admin_roles"`
	ApproverRole string   `mapstructure:"approver_role"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
}

// AIConfig AI provider 配置
type AIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	ImageModel     string        `mapstructure:"image_model"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	BatchWorkers   int           `mapstructure:"batch_workers"`
}

// ServicesConfig 发布目标服务配置
type ServicesConfig struct {
	ContentURL      string        `mapstructure:"content_url"`
	SocialURL       string        `mapstructure:"social_url"`
	NotificationURL string        `mapstructure:"notification_url"`
	Token           string        `mapstructure:"token"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// KafkaConfig 事件流配置
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Workers     int      `mapstructure:"workers"`
}

// Topic 事件主题名称
func (k KafkaConfig) Topic() string {
	if k.TopicPrefix == "" {
		return "ai-service.events"
	}
	return k.TopicPrefix + ".events"
}

// RedisConfig 缓存配置,未启用时使用进程内缓存
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	TemplateTTL   time.Duration `mapstructure:"template_ttl"`
	PermissionTTL time.Duration `mapstructure:"permission_ttl"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	DefaultTargetLanguages []string      `mapstructure:"default_target_languages"`
	SchedulerInterval      time.Duration `mapstructure:"scheduler_interval"` // 0 表示由外部 cron 调用 workflows run-due
	SuggestLimit           int           `mapstructure:"suggest_limit"`
}

// Load 加载配置,支持 .env、配置文件和环境变量
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.ai-service")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8010)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ai_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "ai-service.db")

	// 数据库连接池配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// OpenFGA 默认不启用
	v.SetDefault("openfga.api_url", "")
	v.SetDefault("openfga.store_id", "")
	v.SetDefault("openfga.model_id", "")

	// 认证服务默认配置
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.admin_roles", []string{"admin"})
	v.SetDefault("auth.approver_role", "approver")

	// CORS 默认配置
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 86400)

	// 日志配置（根据环境设置默认值）
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")

	// AI provider 默认配置
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4")
	v.SetDefault("ai.image_model", "dall-e-3")
	v.SetDefault("ai.max_tokens", 2000)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.backoff_initial", 500*time.Millisecond)
	v.SetDefault("ai.backoff_max", 10*time.Second)
	v.SetDefault("ai.batch_workers", 4)

	// 发布目标服务
	v.SetDefault("services.content_url", "http://localhost:8002")
	v.SetDefault("services.social_url", "http://localhost:8007")
	v.SetDefault("services.notification_url", "http://localhost:8008")
	v.SetDefault("services.token", "")
	v.SetDefault("services.timeout", 30*time.Second)

	// Kafka 默认不启用
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "ai-service")
	v.SetDefault("kafka.workers", 5)

	// Redis 默认不启用
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.template_ttl", 5*time.Minute)
	v.SetDefault("redis.permission_ttl", time.Minute)

	// 限流
	v.SetDefault("rate_limit.rps", 100)
	v.SetDefault("rate_limit.burst", 200)

	// 链路追踪
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "http://localhost:14268/api/traces")

	// 工作流
	v.SetDefault("workflow.default_target_languages", []string{"es", "fr", "pt"})
	v.SetDefault("workflow.scheduler_interval", 0)
	v.SetDefault("workflow.suggest_limit", 5)
}
