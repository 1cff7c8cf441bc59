package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Mpesa    MpesaConfig
	Sendgrid SendgridConfig
	SMS      SMSConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Eventing EventingConfig
	Outbox   OutboxConfig
	Reaper   ReaperConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUPERMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"SUPERMARKET_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"SUPERMARKET_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"SUPERMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SUPERMARKET_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"SUPERMARKET_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"SUPERMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUPERMARKET_DB_DSN"`
	Driver string `envconfig:"SUPERMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SUPERMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"SUPERMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SUPERMARKET_DB_USER"`
	LegacyPassword string `envconfig:"SUPERMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"SUPERMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"SUPERMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUPERMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUPERMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUPERMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUPERMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// TxMaxRetries bounds re-execution of a unit of work after a
	// serialization failure or deadlock.
	TxMaxRetries   int           `envconfig:"SUPERMARKET_DB_TX_MAX_RETRIES" default:"3"`
	TxRetryBackoff time.Duration `envconfig:"SUPERMARKET_DB_TX_RETRY_BACKOFF" default:"50ms"`

	SlowQueryThreshold time.Duration `envconfig:"SUPERMARKET_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SUPERMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SUPERMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"SUPERMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"SUPERMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SUPERMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SUPERMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SUPERMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SUPERMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SUPERMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"SUPERMARKET_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SUPERMARKET_JWT_ISSUER" required:"true"`

	ExpirationMinutes int `envconfig:"SUPERMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

// MpesaConfig holds the Daraja STK push credentials and callback tuning.
type MpesaConfig struct {
	Environment    string `envconfig:"SUPERMARKET_MPESA_ENV" default:"sandbox"`
	ConsumerKey    string `envconfig:"SUPERMARKET_MPESA_CONSUMER_KEY"`
	ConsumerSecret string `envconfig:"SUPERMARKET_MPESA_CONSUMER_SECRET"`
	ShortCode      string `envconfig:"SUPERMARKET_MPESA_SHORTCODE" default:"174379"`
	Passkey        string `envconfig:"SUPERMARKET_MPESA_PASSKEY"`
	CallbackPath   string `envconfig:"SUPERMARKET_MPESA_CALLBACK_PATH" default:"/api/v1/payments/mpesa/callback"`

	CallbackTimeout     time.Duration `envconfig:"SUPERMARKET_MPESA_CALLBACK_TIMEOUT" default:"10s"`
	CallbackDedupeTTL   time.Duration `envconfig:"SUPERMARKET_MPESA_CALLBACK_DEDUPE_TTL" default:"24h"`
	AllowAmountFallback bool          `envconfig:"SUPERMARKET_MPESA_ALLOW_AMOUNT_FALLBACK" default:"true"`
	RequestTimeout      time.Duration `envconfig:"SUPERMARKET_MPESA_REQUEST_TIMEOUT" default:"15s"`
}

// BaseURL returns the Daraja host for the configured environment.
func (m MpesaConfig) BaseURL() string {
	if strings.EqualFold(strings.TrimSpace(m.Environment), "production") {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

type SendgridConfig struct {
	APIKey      string `envconfig:"SUPERMARKET_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"SUPERMARKET_SENDGRID_FROM_EMAIL" default:"orders@duka.co.ke"`
	FromName    string `envconfig:"SUPERMARKET_SENDGRID_FROM_NAME" default:"Duka Supermarket"`
}

// SMSConfig configures the Africa's Talking messaging account.
type SMSConfig struct {
	Username string `envconfig:"SUPERMARKET_SMS_USERNAME" default:"sandbox"`
	APIKey   string `envconfig:"SUPERMARKET_SMS_API_KEY"`
	SenderID string `envconfig:"SUPERMARKET_SMS_SENDER_ID"`
	Endpoint string `envconfig:"SUPERMARKET_SMS_ENDPOINT" default:"https://api.sandbox.africastalking.com/version1/messaging"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SUPERMARKET_GCP_PROJECT_ID" required:"true"`
	ApplicationCredentials string `envconfig:"SUPERMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"SUPERMARKET_PUBSUB_NOTIFICATION_TOPIC" default:"supermarket-notification-events"`
	NotificationSubscription string `envconfig:"SUPERMARKET_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SUPERMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SUPERMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SUPERMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SUPERMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// MetricsAddr exposes /metrics for the publisher when set, e.g. ":9102".
	MetricsAddr string `envconfig:"SUPERMARKET_OUTBOX_METRICS_ADDR"`
}

// ReaperConfig tunes the background sweep of abandoned checkouts.
type ReaperConfig struct {
	Interval        time.Duration `envconfig:"SUPERMARKET_CRON_INTERVAL" default:"1h"`
	JobTimeout      time.Duration `envconfig:"SUPERMARKET_CRON_JOB_TIMEOUT" default:"10m"`
	StaleOrderAfter time.Duration `envconfig:"SUPERMARKET_STALE_ORDER_AFTER" default:"72h"`
	BatchSize       int           `envconfig:"SUPERMARKET_STALE_ORDER_BATCH_SIZE" default:"200"`
	OutboxRetention time.Duration `envconfig:"SUPERMARKET_OUTBOX_RETENTION" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
