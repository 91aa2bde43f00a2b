package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPHost           string
	HTTPPort           int
	HTTPAddr           string
	HTTPRequestTimeout time.Duration
	PublicBaseURL      string
	CORSAllowOrigins   []string

	// DatabaseURL selects the Postgres store. Empty keeps calendars in memory.
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	MigrateOnStart    bool

	RedisURL string
	CacheTTL time.Duration

	Oracle              OracleConfig
	ZoneOracle          OracleConfig
	ZoneResolveAttempts int

	ShutdownTimeout time.Duration
	LogLevel        string
	VerboseLogging  bool
}

// OracleConfig points at an OpenAI-style chat completions endpoint.
type OracleConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DAYPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.addr", "")
	v.SetDefault("http.request_timeout", "90s")
	v.SetDefault("http.public_base_url", "http://localhost:8080")
	v.SetDefault("http.cors_allow_origins", "*")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.migrate_on_start", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("oracle.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("zone_oracle.endpoint", "")
	v.SetDefault("zone_oracle.api_key", "")
	v.SetDefault("zone_oracle.model", "")
	v.SetDefault("zone_oracle.timeout", "20s")
	v.SetDefault("zone_oracle.attempts", 3)
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.verbose", false)

	_ = v.BindEnv("http.host", "DAYPLAN_HTTP_HOST", "HTTP_HOST")
	_ = v.BindEnv("http.port", "DAYPLAN_HTTP_PORT", "HTTP_PORT", "PORT")
	_ = v.BindEnv("http.addr", "DAYPLAN_HTTP_ADDR", "HTTP_ADDR")
	_ = v.BindEnv("http.request_timeout", "DAYPLAN_HTTP_REQUEST_TIMEOUT")
	_ = v.BindEnv("http.public_base_url", "DAYPLAN_HTTP_PUBLIC_BASE_URL", "PUBLIC_BASE_URL")
	_ = v.BindEnv("http.cors_allow_origins", "DAYPLAN_HTTP_CORS_ALLOW_ORIGINS")
	_ = v.BindEnv("database.url", "DAYPLAN_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.max_open_conns", "DAYPLAN_DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "DAYPLAN_DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "DAYPLAN_DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.conn_max_idle_time", "DAYPLAN_DATABASE_CONN_MAX_IDLE_TIME")
	_ = v.BindEnv("database.migrate_on_start", "DAYPLAN_DATABASE_MIGRATE_ON_START")
	_ = v.BindEnv("redis.url", "DAYPLAN_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("redis.cache_ttl", "DAYPLAN_REDIS_CACHE_TTL")
	_ = v.BindEnv("oracle.endpoint", "DAYPLAN_ORACLE_ENDPOINT")
	_ = v.BindEnv("oracle.api_key", "DAYPLAN_ORACLE_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("oracle.model", "DAYPLAN_ORACLE_MODEL")
	_ = v.BindEnv("oracle.timeout", "DAYPLAN_ORACLE_TIMEOUT")
	_ = v.BindEnv("zone_oracle.endpoint", "DAYPLAN_ZONE_ORACLE_ENDPOINT")
	_ = v.BindEnv("zone_oracle.api_key", "DAYPLAN_ZONE_ORACLE_API_KEY")
	_ = v.BindEnv("zone_oracle.model", "DAYPLAN_ZONE_ORACLE_MODEL")
	_ = v.BindEnv("zone_oracle.timeout", "DAYPLAN_ZONE_ORACLE_TIMEOUT")
	_ = v.BindEnv("zone_oracle.attempts", "DAYPLAN_ZONE_ORACLE_ATTEMPTS")
	_ = v.BindEnv("shutdown.timeout", "DAYPLAN_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "DAYPLAN_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("log.verbose", "DAYPLAN_LOG_VERBOSE", "VERBOSE_LOGGING")

	shutdownTimeout, err := duration(v, "shutdown.timeout")
	if err != nil {
		return Config{}, err
	}
	requestTimeout, err := duration(v, "http.request_timeout")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := duration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}
	connMaxIdleTime, err := duration(v, "database.conn_max_idle_time")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := duration(v, "redis.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	oracleTimeout, err := duration(v, "oracle.timeout")
	if err != nil {
		return Config{}, err
	}
	zoneOracleTimeout, err := duration(v, "zone_oracle.timeout")
	if err != nil {
		return Config{}, err
	}

	if addr := strings.TrimSpace(v.GetString("http.addr")); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err == nil {
			if host != "" {
				v.Set("http.host", host)
			}
			if port, err := strconv.Atoi(portStr); err == nil {
				v.Set("http.port", port)
			}
		}
	}

	host := strings.TrimSpace(v.GetString("http.host"))
	port := v.GetInt("http.port")

	oracle := OracleConfig{
		Endpoint: strings.TrimSpace(v.GetString("oracle.endpoint")),
		APIKey:   strings.TrimSpace(v.GetString("oracle.api_key")),
		Model:    strings.TrimSpace(v.GetString("oracle.model")),
		Timeout:  oracleTimeout,
	}
	// The zone oracle reuses the scheduling oracle for anything left unset.
	zoneOracle := OracleConfig{
		Endpoint: firstNonEmpty(v.GetString("zone_oracle.endpoint"), oracle.Endpoint),
		APIKey:   firstNonEmpty(v.GetString("zone_oracle.api_key"), oracle.APIKey),
		Model:    firstNonEmpty(v.GetString("zone_oracle.model"), oracle.Model),
		Timeout:  zoneOracleTimeout,
	}

	attempts := v.GetInt("zone_oracle.attempts")
	if attempts < 1 {
		attempts = 1
	}

	return Config{
		HTTPHost:            host,
		HTTPPort:            port,
		HTTPAddr:            net.JoinHostPort(host, strconv.Itoa(port)),
		HTTPRequestTimeout:  requestTimeout,
		PublicBaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("http.public_base_url")), "/"),
		CORSAllowOrigins:    splitList(v.GetString("http.cors_allow_origins")),
		DatabaseURL:         strings.TrimSpace(v.GetString("database.url")),
		DBMaxOpenConns:      v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:      v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:   connMaxLifetime,
		DBConnMaxIdleTime:   connMaxIdleTime,
		MigrateOnStart:      v.GetBool("database.migrate_on_start"),
		RedisURL:            strings.TrimSpace(v.GetString("redis.url")),
		CacheTTL:            cacheTTL,
		Oracle:              oracle,
		ZoneOracle:          zoneOracle,
		ZoneResolveAttempts: attempts,
		ShutdownTimeout:     shutdownTimeout,
		LogLevel:            v.GetString("log.level"),
		VerboseLogging:      v.GetBool("log.verbose"),
	}, nil
}

// Error reports a configuration value that could not be parsed.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return "config " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, &Error{Key: key, Err: err}
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
