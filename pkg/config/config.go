package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GoogleMaps   GoogleMapsConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	SES          SESConfig
	Delivery     DeliveryConfig
	Settlement   SettlementConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads the environment and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := errors.Join(
		cfg.DB.resolveDSN(),
		cfg.Redis.validate(),
		cfg.Delivery.validate(),
		cfg.Settlement.validate(),
	); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LASTMILE_APP_ENV" required:"true"`
	Port         string `envconfig:"LASTMILE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LASTMILE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LASTMILE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"LASTMILE_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow list.
	CORSOrigins []string `envconfig:"LASTMILE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LASTMILE_SERVICE_KIND" default:"api"`
}

// DBConfig takes a DSN, or builds one from the discrete host settings.
type DBConfig struct {
	DSN string `envconfig:"LASTMILE_DB_DSN"`

	Host     string `envconfig:"LASTMILE_DB_HOST"`
	Port     int    `envconfig:"LASTMILE_DB_PORT" default:"5432"`
	User     string `envconfig:"LASTMILE_DB_USER"`
	Password string `envconfig:"LASTMILE_DB_PASSWORD"`
	Name     string `envconfig:"LASTMILE_DB_NAME"`
	SSLMode  string `envconfig:"LASTMILE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LASTMILE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LASTMILE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LASTMILE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LASTMILE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LASTMILE_DB_SLOW_QUERY" default:"500ms"`
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, v := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if v == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"LASTMILE_REDIS_URL"`
	Address      string        `envconfig:"LASTMILE_REDIS_ADDR"`
	Password     string        `envconfig:"LASTMILE_REDIS_PASSWORD"`
	DB           int           `envconfig:"LASTMILE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LASTMILE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LASTMILE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LASTMILE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LASTMILE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LASTMILE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if r.URL == "" && r.Address == "" {
		return fmt.Errorf("%s or %s is required", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

// JWTConfig verifies tokens minted by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"LASTMILE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LASTMILE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LASTMILE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool   `envconfig:"LASTMILE_AUTO_MIGRATE" default:"false"`
	GCSAccessMode  string `envconfig:"LASTMILE_GCS_ACCESS_MODE" default:"public"`
	LedgerExport   bool   `envconfig:"LASTMILE_FEATURE_LEDGER_EXPORT" default:"false"`
	WalletAutoHeal bool   `envconfig:"LASTMILE_FEATURE_WALLET_AUTO_HEAL" default:"false"`
}

type GoogleMapsConfig struct {
	APIKey     string `envconfig:"LASTMILE_GOOGLE_MAPS_API_KEY"`
	BaseURL    string `envconfig:"LASTMILE_GOOGLE_ROUTES_BASE_URL"`
	TravelMode string `envconfig:"LASTMILE_GOOGLE_ROUTES_TRAVEL_MODE" default:"TWO_WHEELER"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LASTMILE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LASTMILE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LASTMILE_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions picks inline JSON, then a key file, then Application Default
// Credentials (no options).
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	}
	return nil
}

type GCSConfig struct {
	BucketName    string        `envconfig:"LASTMILE_GCS_BUCKET_NAME"`
	PublicBaseURL string        `envconfig:"LASTMILE_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	ProofPrefix   string        `envconfig:"LASTMILE_GCS_PROOF_PREFIX" default:"delivery-proofs"`
	ProofURLTTL   time.Duration `envconfig:"LASTMILE_GCS_PROOF_URL_TTL" default:"15m"`
}

type PubSubConfig struct {
	DeliveryTopic   string `envconfig:"LASTMILE_PUBSUB_DELIVERY_TOPIC" default:"lm-delivery-events"`
	SettlementTopic string `envconfig:"LASTMILE_PUBSUB_SETTLEMENT_TOPIC" default:"lm-settlement-events"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"LASTMILE_BIGQUERY_DATASET" default:"lastmile"`
	LedgerTable string `envconfig:"LASTMILE_BIGQUERY_LEDGER_TABLE" default:"wallet_transactions"`
}

// SESConfig drives OTP delivery by email. An empty region selects the log sender.
type SESConfig struct {
	Region    string `envconfig:"LASTMILE_SES_REGION"`
	FromEmail string `envconfig:"LASTMILE_SES_FROM_EMAIL" default:"no-reply@lastmile.local"`
}

func (s SESConfig) Enabled() bool {
	return strings.TrimSpace(s.Region) != ""
}

type DeliveryConfig struct {
	OTPLength         int           `envconfig:"LASTMILE_OTP_LENGTH" default:"6"`
	OTPTTL            time.Duration `envconfig:"LASTMILE_OTP_TTL" default:"10m"`
	OTPMaxAttempts    int           `envconfig:"LASTMILE_OTP_MAX_ATTEMPTS" default:"5"`
	OTPSendLimit      int           `envconfig:"LASTMILE_OTP_SEND_LIMIT" default:"3"`
	OTPSendWindow     time.Duration `envconfig:"LASTMILE_OTP_SEND_WINDOW" default:"10m"`
	OTPArgonMemoryKB  int           `envconfig:"LASTMILE_OTP_ARGON_MEMORY_KB" default:"19456"`
	OTPArgonTime      int           `envconfig:"LASTMILE_OTP_ARGON_TIME" default:"2"`
	RatePerKM         string        `envconfig:"LASTMILE_AGENT_RATE_PER_KM" default:"20"`
	DefaultETA        time.Duration `envconfig:"LASTMILE_DEFAULT_ETA" default:"24h"`
	ProofMaxBytes     int64         `envconfig:"LASTMILE_PROOF_MAX_BYTES" default:"10485760"`
	CompletionRetries int           `envconfig:"LASTMILE_COMPLETION_MAX_ATTEMPTS" default:"10"`
}

// AgentRatePerKM parses the configured per-km agent rate.
func (d DeliveryConfig) AgentRatePerKM() decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(d.RatePerKM))
	if err != nil {
		return decimal.NewFromInt(20)
	}
	return rate
}

func (d DeliveryConfig) validate() error {
	var errs []error
	if d.OTPLength < 4 || d.OTPLength > 10 {
		errs = append(errs, fmt.Errorf("%s must be between 4 and 10", EnvOTPLength))
	}
	if d.OTPTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvOTPTTL))
	}
	if d.OTPMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvOTPMaxAttempts))
	}
	if d.OTPSendLimit <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvOTPSendLimit))
	}
	if d.OTPSendWindow <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvOTPSendWindow))
	}
	if rate, err := decimal.NewFromString(strings.TrimSpace(d.RatePerKM)); err != nil || rate.IsNegative() {
		errs = append(errs, fmt.Errorf("%s must be a non-negative decimal", EnvAgentRatePerKM))
	}
	return errors.Join(errs...)
}

// SettlementConfig holds the platform fee and tax rates as decimal fractions.
type SettlementConfig struct {
	PlatformFeeRate string `envconfig:"LASTMILE_PLATFORM_FEE_RATE" default:"0.05"`
	TaxRate         string `envconfig:"LASTMILE_TAX_RATE" default:"0.18"`
}

func (s SettlementConfig) FeeRate() decimal.Decimal {
	return decimal.RequireFromString(strings.TrimSpace(s.PlatformFeeRate))
}

func (s SettlementConfig) TaxFraction() decimal.Decimal {
	return decimal.RequireFromString(strings.TrimSpace(s.TaxRate))
}

func (s SettlementConfig) validate() error {
	for env, raw := range map[string]string{
		EnvPlatformFeeRate: s.PlatformFeeRate,
		EnvTaxRate:         s.TaxRate,
	} {
		rate, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%s must be between 0 and 1", env)
		}
	}
	return nil
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"LASTMILE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"LASTMILE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"LASTMILE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"LASTMILE_OUTBOX_RETENTION" default:"720h"`
	// MetricsAddr, when set, serves /metrics and /healthz from the publisher.
	MetricsAddr string `envconfig:"LASTMILE_OUTBOX_METRICS_ADDR"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"LASTMILE_CRON_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"LASTMILE_CRON_LOCK_TTL" default:"4m"`
	CompletionBatch int           `envconfig:"LASTMILE_CRON_COMPLETION_BATCH" default:"100"`
	ExportBatch     int           `envconfig:"LASTMILE_CRON_EXPORT_BATCH" default:"500"`
}
