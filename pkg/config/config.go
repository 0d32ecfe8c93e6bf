package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	JWT      JWTConfig
	VNPay    VNPayConfig
	Shipping ShippingConfig
	Loyalty  LoyaltyConfig
	Returns  ReturnsConfig
	Ledger   LedgerConfig
	Saga     SagaConfig
}

type ServerConfig struct {
	AppEnv      string
	Port        string
	CorsOrigins string
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type ShippingConfig struct {
	FlatFee       int64
	FreeThreshold int64
}

type LoyaltyConfig struct {
	VNDPerPoint    int64
	ExpiryDays     int
	ExpireInterval time.Duration
}

type ReturnsConfig struct {
	WindowDays int
}

type LedgerConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

type SagaConfig struct {
	StaleAfter        time.Duration
	ReconcileInterval time.Duration
}

// Load reads the process environment. Call godotenv.Load first to pick up a .env file.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "development"),
			Port:        getEnv("PORT", "3000"),
			CorsOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "storefront"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			TimeZone:        getEnv("DB_TIMEZONE", "Asia/Ho_Chi_Minh"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
			Issuer: getEnv("JWT_ISSUER", "storefront-auth"),
		},
		VNPay: VNPayConfig{
			TmnCode:    getEnv("VNPAY_TMN_CODE", ""),
			HashSecret: getEnv("VNPAY_HASH_SECRET", ""),
			PayURL:     getEnv("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:  getEnv("VNPAY_RETURN_URL", "http://localhost:3000/api/v1/payments/vnpay/callback"),
		},
		Shipping: ShippingConfig{
			FlatFee:       getEnvInt64("SHIPPING_FLAT_FEE", 30000),
			FreeThreshold: getEnvInt64("SHIPPING_FREE_THRESHOLD", 500000),
		},
		Loyalty: LoyaltyConfig{
			VNDPerPoint:    getEnvInt64("LOYALTY_VND_PER_POINT", 10000),
			ExpiryDays:     getEnvInt("LOYALTY_EXPIRY_DAYS", 365),
			ExpireInterval: getEnvDuration("LOYALTY_EXPIRE_INTERVAL", time.Hour),
		},
		Returns: ReturnsConfig{
			WindowDays: getEnvInt("RETURN_WINDOW_DAYS", 7),
		},
		Ledger: LedgerConfig{
			MaxRetries:   getEnvInt("LEDGER_MAX_RETRIES", 5),
			RetryBackoff: getEnvDuration("LEDGER_RETRY_BACKOFF", 10*time.Millisecond),
		},
		Saga: SagaConfig{
			StaleAfter:        getEnvDuration("SAGA_STALE_AFTER", 2*time.Minute),
			ReconcileInterval: getEnvDuration("SAGA_RECONCILE_INTERVAL", time.Minute),
		},
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Server.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
