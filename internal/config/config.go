package config

import (
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

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Webhook   WebhookConfig
	SFTP      SFTPConfig
	Scheduler SchedulerConfig

	PolicyPath string
}

// TelemetryConfig follows the OpenTelemetry environment variable names where
// one exists.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled         bool
	LicenseAPIRate  float64
	LicenseAPIBurst int
}

// AdminToken is a static bearer credential for the administration API.
type AdminToken struct {
	Name  string
	Role  string
	Token string
}

type AdminConfig struct {
	Tokens []AdminToken
}

type WebhookConfig struct {
	SubscriptionSecret string
	MaxAttempts        int
}

type SFTPConfig struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	KnownHostsPath string
	RemoteDir      string
	Timeout        time.Duration
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	Jobs        []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "licensor"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "licensor"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "licensor.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getenvBool("RATE_LIMIT_ENABLED", false),
			LicenseAPIRate:  getenvFloat("RATE_LIMIT_LICENSE_API_RATE", 5),
			LicenseAPIBurst: getenvInt("RATE_LIMIT_LICENSE_API_BURST", 20),
		},
		Admin: AdminConfig{
			Tokens: parseAdminTokens(getenv("ADMIN_API_TOKENS", "")),
		},
		Webhook: WebhookConfig{
			SubscriptionSecret: strings.TrimSpace(getenv("SUBSCRIPTION_WEBHOOK_SECRET", "")),
			MaxAttempts:        getenvInt("SUBSCRIPTION_WEBHOOK_MAX_ATTEMPTS", 5),
		},
		SFTP: SFTPConfig{
			Enabled:        getenvBool("SFTP_ENABLED", false),
			Host:           strings.TrimSpace(getenv("SFTP_HOST", "")),
			Port:           getenvInt("SFTP_PORT", 22),
			User:           strings.TrimSpace(getenv("SFTP_USER", "")),
			Password:       getenv("SFTP_PASSWORD", ""),
			PrivateKeyPath: strings.TrimSpace(getenv("SFTP_PRIVATE_KEY_PATH", "")),
			KnownHostsPath: strings.TrimSpace(getenv("SFTP_KNOWN_HOSTS_PATH", "")),
			RemoteDir:      strings.TrimSpace(getenv("SFTP_REMOTE_DIR", "/uploads")),
			Timeout:        time.Duration(getenvInt("SFTP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: time.Duration(getenvInt("SCHEDULER_INTERVAL_SECONDS", 60)) * time.Second,
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 50),
			Jobs:        parseList(getenv("SCHEDULER_JOBS", "")),
		},
		PolicyPath: strings.TrimSpace(getenv("LICENSING_POLICY_PATH", "")),
	}

	return cfg
}

// otlpProtocol lets the traces-specific variable override the shared one.
func otlpProtocol() string {
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); v != "" {
		return strings.ToLower(v)
	}
	return strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// parseAdminTokens reads "name:role:token" entries separated by commas.
func parseAdminTokens(raw string) []AdminToken {
	out := make([]AdminToken, 0)
	for _, entry := range parseList(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			continue
		}
		token := AdminToken{
			Name:  strings.TrimSpace(parts[0]),
			Role:  strings.ToLower(strings.TrimSpace(parts[1])),
			Token: strings.TrimSpace(parts[2]),
		}
		if token.Name == "" || token.Role == "" || token.Token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
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
