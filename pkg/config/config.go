package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cron         CronConfig
	BobPay       BobPayConfig
	Paystack     PaystackConfig
	Courier      CourierConfig
	Banking      BankingConfig
	URLs         URLConfig
	Webhooks     WebhookConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Settings     SettingsConfig
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
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"ORDERFLOW_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERFLOW_DB_DSN"`
	Driver string `envconfig:"ORDERFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERFLOW_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"ORDERFLOW_CRON_LOCK_TTL" default:"10m"`
	// OutboxRetentionDays bounds how long published outbox rows are kept.
	OutboxRetentionDays int `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type BobPayConfig struct {
	BaseURL    string        `envconfig:"ORDERFLOW_BOBPAY_BASE_URL" default:"https://api.bobpay.co.za"`
	APIToken   string        `envconfig:"ORDERFLOW_BOBPAY_API_TOKEN"`
	Passphrase string        `envconfig:"ORDERFLOW_BOBPAY_PASSPHRASE"`
	Timeout    time.Duration `envconfig:"ORDERFLOW_BOBPAY_TIMEOUT" default:"15s"`
}

// Enabled reports whether enough credentials exist to talk to BobPay.
func (b BobPayConfig) Enabled() bool {
	return strings.TrimSpace(b.APIToken) != "" && strings.TrimSpace(b.Passphrase) != ""
}

type PaystackConfig struct {
	BaseURL   string        `envconfig:"ORDERFLOW_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	SecretKey string        `envconfig:"ORDERFLOW_PAYSTACK_SECRET_KEY"`
	Timeout   time.Duration `envconfig:"ORDERFLOW_PAYSTACK_TIMEOUT" default:"15s"`
}

// Enabled reports whether a Paystack secret key is configured.
func (p PaystackConfig) Enabled() bool {
	return strings.TrimSpace(p.SecretKey) != ""
}

type CourierConfig struct {
	BaseURL       string        `envconfig:"ORDERFLOW_COURIER_BASE_URL"`
	APIKey        string        `envconfig:"ORDERFLOW_COURIER_API_KEY"`
	WebhookSecret string        `envconfig:"ORDERFLOW_COURIER_WEBHOOK_SECRET"`
	TrustUnsigned bool          `envconfig:"ORDERFLOW_COURIER_TRUST_UNSIGNED" default:"true"`
	Timeout       time.Duration `envconfig:"ORDERFLOW_COURIER_TIMEOUT" default:"10s"`
}

type BankingConfig struct {
	// EncryptionKey is the base64 encoded 32 byte key protecting seller account numbers.
	EncryptionKey string `envconfig:"ORDERFLOW_BANKING_ENCRYPTION_KEY"`
}

type URLConfig struct {
	PublicBaseURL string `envconfig:"ORDERFLOW_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	FrontendURL   string `envconfig:"ORDERFLOW_FRONTEND_URL" default:"http://localhost:3000"`
}

// NotifyURL is the provider callback endpoint for the given provider name.
func (u URLConfig) NotifyURL(provider string) string {
	return strings.TrimRight(u.PublicBaseURL, "/") + "/api/v1/webhooks/" + provider
}

// ReturnURL builds a buyer-facing redirect for an order checkout outcome.
func (u URLConfig) ReturnURL(orderID, outcome string) string {
	return fmt.Sprintf("%s/orders/%s/checkout/%s", strings.TrimRight(u.FrontendURL, "/"), orderID, outcome)
}

type WebhookConfig struct {
	InflightTTL time.Duration `envconfig:"ORDERFLOW_WEBHOOK_INFLIGHT_TTL" default:"2m"`
}

type SettingsConfig struct {
	CacheTTL time.Duration `envconfig:"ORDERFLOW_SETTINGS_CACHE_TTL" default:"5m"`
	// CacheBackend is "redis" or "memory".
	CacheBackend string `envconfig:"ORDERFLOW_SETTINGS_CACHE_BACKEND" default:"redis"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" default:"orderflow-order-events"`
	NotificationTopic string `envconfig:"ORDERFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"orderflow-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
