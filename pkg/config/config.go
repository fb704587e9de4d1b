package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Sentry        SentryConfig
	Counters      CountersConfig
	PurchaseOrder PurchaseOrderConfig
	InvoiceUpload InvoiceUploadConfig
	Notifications NotificationsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.InvoiceUpload.validate(); err != nil {
		return nil, err
	}
	if err := cfg.App.parseTrustedProxies(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env                string   `envconfig:"POFLOW_APP_ENV" required:"true"`
	Port               string   `envconfig:"POFLOW_APP_PORT" required:"true"`
	LogLevel           string   `envconfig:"POFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack       bool     `envconfig:"POFLOW_LOG_WARN_STACK" default:"false"`
	PublicBaseURL      string   `envconfig:"POFLOW_PUBLIC_BASE_URL" required:"true"`
	CORSAllowedOrigins []string `envconfig:"POFLOW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For entries are believed. Empty means none.
	TrustedProxies []string `envconfig:"POFLOW_TRUSTED_PROXIES"`

	TrustedProxyPrefixes []netip.Prefix `ignored:"true"`
}

func (a *AppConfig) parseTrustedProxies() error {
	a.TrustedProxyPrefixes = nil
	for _, raw := range a.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(raw); err == nil {
			a.TrustedProxyPrefixes = append(a.TrustedProxyPrefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid address %q", EnvTrustedProxies, raw)
		}
		addr = addr.Unmap()
		a.TrustedProxyPrefixes = append(a.TrustedProxyPrefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return nil
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"POFLOW_DB_DSN"`
	Driver string `envconfig:"POFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"POFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"POFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"POFLOW_DB_USER"`
	LegacyPassword string `envconfig:"POFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"POFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"POFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"POFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"POFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"POFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"POFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	LockTimeout     time.Duration `envconfig:"POFLOW_DB_LOCK_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"POFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"POFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the shared secret of the identity provider that issues access tokens.
type JWTConfig struct {
	Secret   string `envconfig:"POFLOW_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"POFLOW_JWT_ISSUER" required:"true"`
	Audience string `envconfig:"POFLOW_JWT_AUDIENCE" default:"authenticated"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"POFLOW_AUTO_MIGRATE" default:"false"`
	Notifications bool `envconfig:"POFLOW_FEATURE_NOTIFICATIONS" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"POFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"POFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"POFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName     string        `envconfig:"POFLOW_GCS_BUCKET_NAME" required:"true"`
	RequestTimeout time.Duration `envconfig:"POFLOW_GCS_REQUEST_TIMEOUT" default:"30s"`
	RetryMax       int           `envconfig:"POFLOW_GCS_RETRY_MAX" default:"3"`
}

type PubSubConfig struct {
	NotificationTopic string        `envconfig:"POFLOW_PUBSUB_NOTIFICATION_TOPIC" default:"po-notification-events"`
	PublishTimeout    time.Duration `envconfig:"POFLOW_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

type SentryConfig struct {
	DSN         string  `envconfig:"POFLOW_SENTRY_DSN"`
	Environment string  `envconfig:"POFLOW_SENTRY_ENVIRONMENT"`
	SampleRate  float64 `envconfig:"POFLOW_SENTRY_SAMPLE_RATE" default:"1.0"`
}

// Enabled reports whether a DSN was supplied.
func (s SentryConfig) Enabled() bool {
	return strings.TrimSpace(s.DSN) != ""
}

type CountersConfig struct {
	MaxAttempts    uint64        `envconfig:"POFLOW_COUNTER_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"POFLOW_COUNTER_INITIAL_BACKOFF" default:"25ms"`
	MaxBackoff     time.Duration `envconfig:"POFLOW_COUNTER_MAX_BACKOFF" default:"1s"`
}

type PurchaseOrderConfig struct {
	NumberPrefix  string `envconfig:"POFLOW_PO_NUMBER_PREFIX" default:"PO"`
	NumberPadding int    `envconfig:"POFLOW_PO_NUMBER_PADDING" default:"5"`
}

type InvoiceUploadConfig struct {
	TokenTTL        time.Duration `envconfig:"POFLOW_INVOICE_UPLOAD_TOKEN_TTL" default:"168h"`
	MaxUploadMB     int           `envconfig:"POFLOW_INVOICE_MAX_UPLOAD_MB" default:"10"`
	RateLimitWindow time.Duration `envconfig:"POFLOW_INVOICE_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"POFLOW_INVOICE_RATE_LIMIT_PER_IP" default:"10"`
}

// MaxUploadBytes converts the configured megabyte ceiling into bytes.
func (c InvoiceUploadConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

func (c InvoiceUploadConfig) validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvInvoiceTokenTTL)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("%s must be positive", EnvInvoiceMaxUploadMB)
	}
	return nil
}

type NotificationsConfig struct {
	HookTimeout time.Duration `envconfig:"POFLOW_NOTIFICATION_HOOK_TIMEOUT" default:"15s"`
}

// DefaultApprovalThreshold is applied to organizations created without an explicit cutoff.
var DefaultApprovalThreshold = decimal.NewFromInt(1000)

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
