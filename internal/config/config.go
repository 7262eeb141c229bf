package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string
	Telemetry    TelemetryConfig

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

	Stripe   StripeConfig
	Identity IdentityConfig
	Connect  ConnectConfig

	RateLimit RateLimitConfig
	Reconcile ReconcileConfig
}

type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API base, mainly for tests and stripe-mock.
	APIURL  string
	Timeout time.Duration
}

type IdentityConfig struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

type ConnectConfig struct {
	AllowedOrigins []string
	DashboardPath  string
	Country        string
}

type RateLimitConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CreateAccountLimit  int
	CreateAccountWindow time.Duration
	DashboardLinkLimit  int
	DashboardLinkWindow time.Duration
	CreateLockTTL       time.Duration

	IPEnabled           bool
	IPRequestsPerSecond float64
	IPBurst             int
}

// TelemetryConfig carries log and OpenTelemetry settings. Values are raw;
// observability normalizes them.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// ReconcileConfig drives the in-process orphan reconciliation loop.
type ReconcileConfig struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

var defaultAllowedOrigins = []string{
	"https://barberconnect.app",
	"https://www.barberconnect.app",
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "barberconnect"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      getenv("LOG_LEVEL", "info"),
			LogFormat:     getenv("LOG_FORMAT", "json"),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		Stripe: StripeConfig{
			SecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			APIURL:    strings.TrimSpace(getenv("STRIPE_API_URL", "")),
			Timeout:   getenvDuration("STRIPE_TIMEOUT", 10*time.Second),
		},
		Identity: IdentityConfig{
			URL:     strings.TrimRight(strings.TrimSpace(getenv("IDENTITY_URL", "")), "/"),
			AnonKey: strings.TrimSpace(getenv("IDENTITY_ANON_KEY", "")),
			Timeout: getenvDuration("IDENTITY_TIMEOUT", 5*time.Second),
		},
		Connect: ConnectConfig{
			AllowedOrigins: parseList(getenv("ALLOWED_ORIGINS", ""), defaultAllowedOrigins),
			DashboardPath:  getenv("DASHBOARD_PATH", "/dashboard"),
			Country:        strings.ToUpper(getenv("STRIPE_ACCOUNT_COUNTRY", "US")),
		},
		RateLimit: RateLimitConfig{
			Backend:             normalizeBackend(getenv("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword:       strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:             getenvInt("REDIS_DB", 0),
			CreateAccountLimit:  getenvInt("CREATE_ACCOUNT_LIMIT", 5),
			CreateAccountWindow: getenvDuration("CREATE_ACCOUNT_WINDOW", 5*time.Minute),
			DashboardLinkLimit:  getenvInt("DASHBOARD_LINK_LIMIT", 10),
			DashboardLinkWindow: getenvDuration("DASHBOARD_LINK_WINDOW", 5*time.Minute),
			CreateLockTTL:       getenvDuration("CREATE_LOCK_TTL", 30*time.Second),
			IPEnabled:           getenvBool("IP_RATE_LIMIT_ENABLED", true),
			IPRequestsPerSecond: getenvFloat("IP_RATE_LIMIT_RPS", 5),
			IPBurst:             getenvInt("IP_RATE_LIMIT_BURST", 20),
		},
		Reconcile: ReconcileConfig{
			Enabled:  getenvBool("RECONCILE_ENABLED", true),
			Interval: getenvDuration("RECONCILE_INTERVAL", 10*time.Minute),
			Timeout:  getenvDuration("RECONCILE_TIMEOUT", 5*time.Minute),
		},
	}

	return cfg
}

var (
	ErrStripeKeyMissing   = errors.New("missing secret key")
	ErrStripeKeyMalformed = errors.New("malformed secret key")
)

var stripeKeyPrefixes = []string{"sk_test_", "sk_live_", "rk_test_", "rk_live_"}

// StripeKeyError reports whether the Stripe secret key is usable. It does not
// call Stripe.
func (c Config) StripeKeyError() error {
	key := strings.TrimSpace(c.Stripe.SecretKey)
	if key == "" {
		return ErrStripeKeyMissing
	}
	for _, prefix := range stripeKeyPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return nil
		}
	}
	return ErrStripeKeyMalformed
}

// StripeMode returns "live" or "test" based on the key prefix.
func (c Config) StripeMode() string {
	if strings.Contains(c.Stripe.SecretKey, "_live_") {
		return "live"
	}
	return "test"
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RateLimitBackendRedis:
		return RateLimitBackendRedis
	default:
		return RateLimitBackendMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("90s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parseList(raw string, def []string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}
