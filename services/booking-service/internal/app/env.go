package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/consultdesk/libs/auth"
	"github.com/md-rashed-zaman/consultdesk/libs/config"
	"github.com/md-rashed-zaman/consultdesk/libs/httpx"
	"github.com/md-rashed-zaman/consultdesk/libs/kafkax"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/outbox"
)

type Mode string

const (
	ModeProduction Mode = "production"
	// ModeMock runs without external services: memory store, sqlite directory, mock identity
	// provider and log notifications.
	ModeMock Mode = "mock"
)

const (
	SinkSMTP  = "smtp"
	SinkKafka = "kafka"
	SinkLog   = "log"
)

// Environment is everything the service reads at startup. It is built once and passed
// explicitly; nothing below reads the process environment.
type Environment struct {
	Service  string
	Mode     Mode
	LogLevel string
	Port     string
	GRPCPort string
	Timezone string

	DatabaseURL     string
	DBMaxConns      int
	DirectoryDriver string
	DirectoryDSN    string

	CognitoRegion     string
	CognitoUserPoolID string
	IdentityTimeout   time.Duration
	SyncSendsInvite   bool

	AdminGroup   string
	JWTSecret    string
	JWKSURL      string
	JWKSCacheTTL time.Duration
	JWTIssuer    string
	JWTAudience  string

	NotifySink   string
	SMTP         notify.SMTPConfig
	KafkaBrokers []string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	RateLimitFailOpen  bool

	CORS           httpx.CORSPolicy
	BodyLimitBytes int64
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration

	WorkerLimit     int
	DefaultDuration int
	Outbox          outbox.RelayConfig
}

func LoadEnvironment() (Environment, error) {
	env := Environment{
		Service:  config.String("SERVICE_NAME", "booking-service"),
		Mode:     Mode(strings.ToLower(config.String("APP_ENV", string(ModeProduction)))),
		LogLevel: config.String("LOG_LEVEL", "info"),
		Timezone: config.String("APP_TIMEZONE", "UTC"),

		DatabaseURL:     config.String("DATABASE_URL", ""),
		DBMaxConns:      config.Int("DB_MAX_CONNS", 10),
		DirectoryDriver: config.String("DIRECTORY_DRIVER", "postgres"),
		DirectoryDSN:    config.String("DIRECTORY_DSN", ""),

		CognitoRegion:     config.String("COGNITO_REGION", config.String("AWS_REGION", "us-east-1")),
		CognitoUserPoolID: config.String("COGNITO_USER_POOL_ID", ""),
		IdentityTimeout:   config.Duration("IDENTITY_TIMEOUT", 5*time.Second),
		SyncSendsInvite:   config.Bool("IDENTITY_SYNC_SEND_INVITE", false),

		AdminGroup:   config.String("ADMIN_GROUP", "admin"),
		JWTSecret:    config.String("JWT_SECRET", ""),
		JWKSURL:      config.String("JWKS_URL", ""),
		JWKSCacheTTL: config.Duration("JWKS_CACHE_TTL", 5*time.Minute),
		JWTIssuer:    config.String("JWT_ISSUER", ""),
		JWTAudience:  config.String("JWT_AUDIENCE", ""),

		NotifySink: strings.ToLower(config.String("NOTIFY_SINK", "")),
		SMTP: notify.SMTPConfig{
			Host:     config.String("SMTP_HOST", ""),
			Port:     config.Int("SMTP_PORT", 587),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
			From:     config.String("SMTP_FROM", ""),
		},
		KafkaBrokers: kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")),

		RedisAddr:          config.String("REDIS_ADDR", ""),
		RedisPassword:      config.String("REDIS_PASSWORD", ""),
		RedisDB:            config.Int("REDIS_DB", 0),
		RateLimitPerMinute: config.Int("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitFailOpen:  config.Bool("RATE_LIMIT_FAIL_OPEN", true),

		CORS: httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		},
		BodyLimitBytes: int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)),
		RequestTimeout: config.Duration("REQUEST_TIMEOUT", 15*time.Second),
		ShutdownGrace:  config.Duration("SHUTDOWN_GRACE", 10*time.Second),

		WorkerLimit:     config.Int("WORKER_LIMIT", 4),
		DefaultDuration: config.Int("DEFAULT_APPOINTMENT_MINUTES", 60),
		Outbox: outbox.RelayConfig{
			PollEvery:   config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize:   config.Int("OUTBOX_BATCH_SIZE", 50),
			Lease:       config.Duration("OUTBOX_LEASE", time.Minute),
			BaseBackoff: config.Duration("OUTBOX_BASE_BACKOFF", 5*time.Second),
			MaxBackoff:  config.Duration("OUTBOX_MAX_BACKOFF", 10*time.Minute),
			MaxAttempts: config.Int("OUTBOX_MAX_ATTEMPTS", 8),
		},
	}

	var err error
	if env.Port, err = config.Port("PORT", "8083"); err != nil {
		return Environment{}, err
	}
	if env.GRPCPort, err = config.Port("GRPC_PORT", "9083"); err != nil {
		return Environment{}, err
	}
	if err := env.resolve(); err != nil {
		return Environment{}, err
	}
	return env, nil
}

// resolve fills mode-dependent defaults and rejects incomplete production settings.
func (e *Environment) resolve() error {
	switch e.Mode {
	case ModeMock:
		e.DirectoryDriver = "sqlite"
		if e.DirectoryDSN == "" {
			e.DirectoryDSN = "file:consultdesk?mode=memory&cache=shared"
		}
		if e.JWTSecret == "" && e.JWKSURL == "" {
			e.JWTSecret = "dev-secret"
		}
		if e.NotifySink == "" {
			e.NotifySink = SinkLog
		}
		return nil
	case ModeProduction:
	default:
		return fmt.Errorf("APP_ENV must be %q or %q (got %q)", ModeProduction, ModeMock, e.Mode)
	}

	if e.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if e.DirectoryDSN == "" && e.DirectoryDriver == "postgres" {
		e.DirectoryDSN = e.DatabaseURL
	}
	if e.CognitoUserPoolID == "" {
		return fmt.Errorf("COGNITO_USER_POOL_ID is required")
	}
	if e.JWKSURL == "" && e.JWTSecret == "" {
		e.JWKSURL = auth.CognitoIssuer(e.CognitoRegion, e.CognitoUserPoolID) + "/.well-known/jwks.json"
		if e.JWTIssuer == "" {
			e.JWTIssuer = auth.CognitoIssuer(e.CognitoRegion, e.CognitoUserPoolID)
		}
	}
	if e.NotifySink == "" {
		e.NotifySink = SinkSMTP
	}
	switch e.NotifySink {
	case SinkSMTP:
		if e.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required for NOTIFY_SINK=smtp")
		}
	case SinkKafka:
		if len(e.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for NOTIFY_SINK=kafka")
		}
	case SinkLog:
	default:
		return fmt.Errorf("NOTIFY_SINK must be smtp, kafka or log (got %q)", e.NotifySink)
	}
	return nil
}
