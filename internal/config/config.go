package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	Port      string
	JWTSecret string
	GinMode   string

	StorageDriver  string
	RedisAddress   string
	LockTimeout    time.Duration
	VoucherLockTTL time.Duration
	AutoMigrate    bool

	// PermissionCacheTTL overrides the grant cache lifetime when > 0
	PermissionCacheTTL time.Duration

	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

// Load reads envFile when present, then the process environment.
// The returned bool reports whether envFile was loaded.
func Load(envFile string) (Config, bool) {
	loaded := envFile != "" && godotenv.Load(envFile) == nil

	cfg := Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "postgres"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Port:      getEnv("PORT", "8080"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		GinMode:   getEnv("GIN_MODE", "debug"),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),
		RedisAddress:   os.Getenv("REDIS_ADDRESS"),
		LockTimeout:    getMillis("LOCK_TIMEOUT_MS", 5*time.Second),
		VoucherLockTTL: getMillis("VOUCHER_LOCK_TTL_MS", 10*time.Second),
		AutoMigrate:    getBool("AUTO_MIGRATE", true),

		PermissionCacheTTL: getMillis("PERMISSION_CACHE_TTL_MS", 0),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS",
			"http://localhost:5173,http://127.0.0.1:5173")),
	}
	return cfg, loaded
}

// DSN is the postgres connection string
func (c Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// Secret returns the JWT signing key. Release mode refuses the development fallback.
func (c Config) Secret() []byte {
	if c.JWTSecret == "" {
		if c.GinMode == "release" {
			panic("FATAL: JWT_SECRET environment variable is required in production mode")
		}
		return []byte("default_super_secret_key")
	}
	return []byte(c.JWTSecret)
}

// GrantCacheTTL is how long a branch grant may be served from the local cache.
// Instances sharing redis cannot see each other's invalidations, so they cache briefly.
func (c Config) GrantCacheTTL() time.Duration {
	switch {
	case c.PermissionCacheTTL > 0:
		return c.PermissionCacheTTL
	case c.RedisAddress != "":
		return 5 * time.Second
	default:
		return time.Minute
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getMillis(key string, fallback time.Duration) time.Duration {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return time.Duration(v) * time.Millisecond
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
