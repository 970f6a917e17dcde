package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string

	// JWT
	JWTSecret       string
	JWTAccessExpiry time.Duration

	// Blob storage
	StorageDriver  string // local or minio
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioPublicURL string

	// Upload and task validation policy
	ImageMaxKB        int
	ImageAllowedTypes []string
	ImageAllowSVG     bool
	GPSStrict         bool

	// Server
	Port        string
	AppURL      string
	AppEnv      string
	CORSOrigins string
	SentryDSN   string
	ProxyHeader string

	// Requests per minute per IP on register and login
	AuthRateLimit int

	LogRetentionDays int
}

func Load() *Config {
	return &Config{
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "taskboard"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "taskboard.db"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTAccessExpiry: parseDuration(getEnv("JWT_ACCESS_EXPIRY", "24h"), 24*time.Hour),

		StorageDriver:  getEnv("STORAGE_DRIVER", "local"),
		StoragePath:    getEnv("STORAGE_PATH", "storage/public"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:    getEnv("MINIO_BUCKET", "taskboard"),
		MinioUseSSL:    parseBool(getEnv("MINIO_USE_SSL", "false")),
		MinioPublicURL: getEnv("MINIO_PUBLIC_URL", ""),

		ImageMaxKB:        parseInt(getEnv("IMAGE_MAX_KB", "5048"), 5048),
		ImageAllowedTypes: parseCSV(getEnv("IMAGE_ALLOWED_TYPES", "image/jpeg,image/png,image/gif")),
		ImageAllowSVG:     parseBool(getEnv("IMAGE_ALLOW_SVG", "false")),
		GPSStrict:         parseBool(getEnv("GPS_STRICT", "false")),

		Port:        getEnv("PORT", "8000"),
		AppURL:      strings.TrimRight(getEnv("APP_URL", "http://localhost:8000"), "/"),
		AppEnv:      getEnv("APP_ENV", "development"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		ProxyHeader: getEnv("PROXY_HEADER", ""),

		AuthRateLimit: parseInt(getEnv("AUTH_RATE_LIMIT", "10"), 10),

		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
