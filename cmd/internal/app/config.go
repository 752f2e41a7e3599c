package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	InitSchema  bool
	RedisAddr   string
	RedisPass   string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, COTERIE_TOKEN_HMAC_KEY must be set (>= 32 bytes) and session
	// secret hashing will be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("COTERIE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("COTERIE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("COTERIE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("COTERIE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("COTERIE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("COTERIE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("COTERIE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("COTERIE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("COTERIE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("COTERIE_DB_MIN_CONNS", 0),
		InitSchema:  EnvBool("COTERIE_DB_INIT_SCHEMA", false),
		RedisAddr:   EnvString("COTERIE_REDIS_ADDR", ""),
		RedisPass:   EnvString("COTERIE_REDIS_PASSWORD", ""),

		ReadinessRequireDB: EnvBool("COTERIE_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("COTERIE_REQUIRE_TOKEN_HMAC", false),
	}
}
