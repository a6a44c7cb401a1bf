package config

import (
	"fmt"
	"time"
)

// Config holds the recorder server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	App     AppConfig     `yaml:"app"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// StorageConfig selects and tunes the visits database
type StorageConfig struct {
	// Backend is one of sqlite, mysql, postgres, memory
	Backend         string        `yaml:"backend"           env:"STORAGE_BACKEND"           env-default:"sqlite"`
	DSN             string        `yaml:"dsn"               env:"STORAGE_DSN"               env-default:"file:visiteurs.db?_pragma=busy_timeout(5000)"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"STORAGE_MAX_OPEN_CONNS"    env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"STORAGE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"STORAGE_CONN_MAX_LIFETIME" env-default:"5m"`
	// EnsureSchemaOnWrite re-runs the idempotent CREATE TABLE before every insert
	EnsureSchemaOnWrite bool `yaml:"ensure_schema_on_write" env:"STORAGE_ENSURE_SCHEMA_ON_WRITE" env-default:"false"`
}

// RedisConfig holds Redis connection settings. Redis is optional: it backs
// the export cache and the /save rate limiter.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"   env:"REDIS_ENABLED"   env-default:"false"`
	Host     string        `yaml:"host"      env:"REDIS_HOST"      env-default:"localhost"`
	Port     string        `yaml:"port"      env:"REDIS_PORT"      env-default:"6379"`
	Password string        `yaml:"password"  env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"        env:"REDIS_DB"        env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s"`
}

// AppConfig holds recorder behaviour switches
type AppConfig struct {
	Environment        string `yaml:"environment"           env:"APP_ENV"                        env-default:"development"`
	LogLevel           string `yaml:"log_level"             env:"LOG_LEVEL"                      env-default:"info"`
	AnonymizeIP        bool   `yaml:"anonymize_ip"          env:"ANONYMIZE_IP"                   env-default:"false"`
	AuditLogPath       string `yaml:"audit_log_path"        env:"AUDIT_LOG_PATH"                 env-default:"visites.txt"`
	MaxBodyBytes       int64  `yaml:"max_body_bytes"        env:"MAX_BODY_BYTES"                 env-default:"16384"`
	ExportEnabled      bool   `yaml:"export_enabled"        env:"EXPORT_ENABLED"                 env-default:"true"`
	RateLimitEnabled   bool   `yaml:"rate_limit_enabled"    env:"RATE_LIMIT_ENABLED"             env-default:"true"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" env-default:"60"`
	EnableMetrics      bool   `yaml:"enable_metrics"        env:"ENABLE_METRICS"                 env-default:"true"`
	AllowedOrigins     string `yaml:"allowed_origins"       env:"CORS_ALLOWED_ORIGINS"           env-default:"*"`
	// CollectorEndpoint is the default destination baked into /collector.js
	CollectorEndpoint string `yaml:"collector_endpoint" env:"COLLECTOR_ENDPOINT" env-default:"/save"`
}

// RedisAddr returns the Redis address in host:port format
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// CollectorConfig configures the beacon binary
type CollectorConfig struct {
	// Destination is the recorder endpoint or a third-party webhook URL
	Destination string `yaml:"destination" env:"BEACON_DESTINATION" env-default:"http://localhost:8080/save"`
	// Method is "post" (JSON body) or "query" (GET with fields in the query string)
	Method          string        `yaml:"method"            env:"BEACON_METHOD"            env-default:"post"`
	IncludeIPLookup bool          `yaml:"include_ip_lookup" env:"BEACON_INCLUDE_IP_LOOKUP" env-default:"false"`
	IPLookupURL     string        `yaml:"ip_lookup_url"     env:"BEACON_IP_LOOKUP_URL"     env-default:"https://api.ipify.org?format=json"`
	AppendIPParam   bool          `yaml:"append_ip_param"   env:"BEACON_APPEND_IP_PARAM"   env-default:"false"`
	Timeout         time.Duration `yaml:"timeout"           env:"BEACON_TIMEOUT"           env-default:"10s"`
	Interval        time.Duration `yaml:"interval"          env:"BEACON_INTERVAL"          env-default:"0s"`
	LogLevel        string        `yaml:"log_level"         env:"LOG_LEVEL"                env-default:"info"`
}
