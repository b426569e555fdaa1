package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Mode        string
	Environment string
	Timezone    string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

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

	Redis        RedisConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NotificationConfig struct {
	// Driver selects the notification surface: redis, kafka or none.
	Driver       string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
	// OwnerRatePerMinute and OwnerBurst throttle messages per owner; zero disables throttling.
	OwnerRatePerMinute float64
	OwnerBurst         int
}

type SchedulerConfig struct {
	Enabled  bool
	Schedule string
	LockTTL  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "wattwatch"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Mode:         normalizeMode(getenv("APP_MODE", ModeStandalone)),
		Environment:  getenv("ENVIRONMENT", "development"),
		Timezone:     getenv("APP_TIMEZONE", "Local"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "wattwatch"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Notification: NotificationConfig{
			Driver:       strings.ToLower(strings.TrimSpace(getenv("NOTIFICATION_DRIVER", "none"))),
			RedisChannel: getenv("NOTIFICATION_REDIS_CHANNEL", "wattwatch.alerts"),
			KafkaBrokers: parseList(getenv("NOTIFICATION_KAFKA_BROKERS", "")),
			KafkaTopic:   getenv("NOTIFICATION_KAFKA_TOPIC", "wattwatch.alerts"),

			OwnerRatePerMinute: getenvFloat("NOTIFICATION_OWNER_RATE_PER_MINUTE", 0),
			OwnerBurst:         getenvInt("NOTIFICATION_OWNER_BURST", 10),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getenvBool("SCHEDULER_ENABLED", true),
			Schedule: getenv("SCHEDULER_SCHEDULE", "@hourly"),
			LockTTL:  getenvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		},
	}

	return cfg
}

const (
	ModeStandalone = "standalone"
	ModeCluster    = "cluster"
)

// IsCluster reports whether more than one scheduler instance may run at once.
func (c Config) IsCluster() bool {
	return c.Mode == ModeCluster
}

// Location resolves the configured timezone used for calendar-aligned windows.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewEngineConfigHolder),
)

func normalizeMode(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case ModeCluster:
		return ModeCluster
	default:
		return ModeStandalone
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
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
