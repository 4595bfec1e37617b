package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/krisalay/cachecenter/center"
	evict "github.com/krisalay/cachecenter/eviction"
	"github.com/krisalay/cachecenter/expiration"
	"github.com/krisalay/cachecenter/identity"
)

type Config struct {
	Cache    CacheConfig
	Write    WriteConfig
	Persist  PersistConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

type CacheConfig struct {
	MaxSize        int
	DefaultTTL     time.Duration
	Eviction       evict.PolicyType
	Expiration     expiration.PolicyType
	MatchMode      identity.MatchMode
	ListenerBuffer int
	ReadThrough    bool
}

type WriteConfig struct {
	Policy string // write-through or write-back
	Buffer int
}

type PersistConfig struct {
	Backend string // file, postgres, redis or none
	Dir     string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	KeyPrefix string
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set.
	Addr string
}

const (
	WriteThrough = "write-through"
	WriteBack    = "write-back"

	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendNone     = "none"
)

// Load reads the environment, after loading .env if present, and rejects
// unknown policy or backend names.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	eviction, err := evict.ParsePolicyType(getEnv("CACHE_EVICTION_POLICY", string(evict.LRU)))
	if err != nil {
		return nil, err
	}
	exp, err := expiration.ParsePolicyType(getEnv("CACHE_EXPIRATION_POLICY", string(expiration.Created)))
	if err != nil {
		return nil, err
	}
	mode, err := identity.ParseMatchMode(getEnv("CACHE_MATCH_MODE", string(identity.MatchPrefix)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Cache: CacheConfig{
			MaxSize:        getIntEnv("CACHE_MAX_SIZE", 10000),
			DefaultTTL:     getDurationEnv("CACHE_DEFAULT_TTL", 0),
			Eviction:       eviction,
			Expiration:     exp,
			MatchMode:      mode,
			ListenerBuffer: getIntEnv("CACHE_LISTENER_BUFFER", 1024),
			ReadThrough:    getBoolEnv("CACHE_READ_THROUGH", false),
		},
		Write: WriteConfig{
			Policy: strings.ToLower(getEnv("CACHE_WRITE_POLICY", WriteThrough)),
			Buffer: getIntEnv("CACHE_WRITE_BUFFER", 1024),
		},
		Persist: PersistConfig{
			Backend: strings.ToLower(getEnv("PERSIST_BACKEND", BackendFile)),
			Dir:     getEnv("PERSIST_DIR", "./data"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "cachecenter"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "cachecenter"),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}

	switch cfg.Write.Policy {
	case WriteThrough, WriteBack:
	default:
		return nil, identity.InvalidArgument("unknown write policy %q", cfg.Write.Policy)
	}
	switch cfg.Persist.Backend {
	case BackendFile, BackendPostgres, BackendRedis, BackendNone:
	default:
		return nil, identity.InvalidArgument("unknown persistence backend %q", cfg.Persist.Backend)
	}

	// Build database DSN
	cfg.Database.DSN = getEnv("DB_DSN", fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	))

	return cfg, nil
}

// Center converts the cache section into a center configuration.
func (c CacheConfig) Center() center.Config {
	return center.Config{
		MaxSize:        c.MaxSize,
		DefaultTTL:     c.DefaultTTL,
		Eviction:       c.Eviction,
		Expiration:     c.Expiration,
		MatchMode:      c.MatchMode,
		ListenerBuffer: c.ListenerBuffer,
		ReadThrough:    c.ReadThrough,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
