package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GatewayStripeBaseURL   string
	GatewayStripeAPIKey    string
	GatewayMonerooBaseURL  string
	GatewayMonerooAPIKey   string
	GatewayEbillingBaseURL string
	GatewayEbillingAPIKey  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "boohpay"),
		AppVersion:  getenv("APP_VERSION", "1.0.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "boohpay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		GatewayStripeBaseURL:   getenv("GATEWAY_STRIPE_BASE_URL", "https://api.stripe.com"),
		GatewayStripeAPIKey:    strings.TrimSpace(getenv("GATEWAY_STRIPE_API_KEY", "")),
		GatewayMonerooBaseURL:  getenv("GATEWAY_MONEROO_BASE_URL", "https://api.moneroo.io"),
		GatewayMonerooAPIKey:   strings.TrimSpace(getenv("GATEWAY_MONEROO_API_KEY", "")),
		GatewayEbillingBaseURL: getenv("GATEWAY_EBILLING_BASE_URL", "https://lab.billing-easy.net"),
		GatewayEbillingAPIKey:  strings.TrimSpace(getenv("GATEWAY_EBILLING_API_KEY", "")),
	}
}

// Module provides application and orchestration configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(LoadOrchestration),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
