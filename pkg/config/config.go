package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Idempotency   IdempotencyConfig
	JWT           JWTConfig
	CORS          CORSConfig
	FeatureFlags  FeatureFlagsConfig
	Checkout      CheckoutConfig
	Ledger        LedgerConfig
	GCP           GCPConfig
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
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTENGINE_APP_ENV" required:"true"`
	Port         string `envconfig:"CARTENGINE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"CARTENGINE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CARTENGINE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CARTENGINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CARTENGINE_DB_DSN"`
	Driver string `envconfig:"CARTENGINE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CARTENGINE_DB_HOST"`
	Port     int    `envconfig:"CARTENGINE_DB_PORT" default:"5432"`
	User     string `envconfig:"CARTENGINE_DB_USER"`
	Password string `envconfig:"CARTENGINE_DB_PASSWORD"`
	Name     string `envconfig:"CARTENGINE_DB_NAME"`
	SSLMode  string `envconfig:"CARTENGINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARTENGINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARTENGINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARTENGINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTENGINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	QueryTimeout    time.Duration `envconfig:"CARTENGINE_DB_QUERY_TIMEOUT" default:"5s"`
}

// IsSQLite reports whether the engine runs against a local SQLite file.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTENGINE_REDIS_URL"`
	Address      string        `envconfig:"CARTENGINE_REDIS_ADDR"`
	Password     string        `envconfig:"CARTENGINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTENGINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARTENGINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARTENGINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTENGINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTENGINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// IdempotencyConfig bounds how long Idempotency-Key records live. LockTTL
// covers a request still in flight; TTL covers the stored response.
type IdempotencyConfig struct {
	TTL     time.Duration `envconfig:"CARTENGINE_IDEMPOTENCY_TTL" default:"168h"`
	LockTTL time.Duration `envconfig:"CARTENGINE_IDEMPOTENCY_LOCK_TTL" default:"30s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CARTENGINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CARTENGINE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CARTENGINE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CARTENGINE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	MaxAgeSeconds  int      `envconfig:"CARTENGINE_CORS_MAX_AGE_SECONDS" default:"300"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CARTENGINE_AUTO_MIGRATE" default:"false"`
}

// CheckoutConfig holds the fixed pricing rules applied when an order is built.
type CheckoutConfig struct {
	DeliveryFee         int64 `envconfig:"CARTENGINE_CHECKOUT_DELIVERY_FEE" default:"1000"`
	MinPayerPhoneDigits int   `envconfig:"CARTENGINE_CHECKOUT_MIN_PAYER_PHONE_DIGITS" default:"8"`
}

func (c CheckoutConfig) validate() error {
	if c.DeliveryFee < 0 {
		return fmt.Errorf("%s must be non-negative", EnvCheckoutDeliveryFee)
	}
	if c.MinPayerPhoneDigits <= 0 {
		return fmt.Errorf("%s must be positive", EnvCheckoutMinPhoneDigits)
	}
	return nil
}

// LedgerConfig bounds the retry loop used for transient storage conflicts.
type LedgerConfig struct {
	ConflictRetries int           `envconfig:"CARTENGINE_LEDGER_CONFLICT_RETRIES" default:"3"`
	RetryBaseDelay  time.Duration `envconfig:"CARTENGINE_LEDGER_RETRY_BASE_DELAY" default:"25ms"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CARTENGINE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CARTENGINE_GCP_CREDENTIALS_JSON"`
}

type NotificationsConfig struct {
	Topic        string `envconfig:"CARTENGINE_NOTIFICATIONS_TOPIC"`
	AMQPURL      string `envconfig:"CARTENGINE_NOTIFICATIONS_AMQP_URL"`
	AMQPExchange string `envconfig:"CARTENGINE_NOTIFICATIONS_AMQP_EXCHANGE" default:"cartengine.notifications"`
}

// PubSubEnabled reports whether notifications should also be published to Pub/Sub.
func (n NotificationsConfig) PubSubEnabled() bool {
	return strings.TrimSpace(n.Topic) != ""
}

// AMQPEnabled reports whether notifications should also go to a RabbitMQ exchange.
func (n NotificationsConfig) AMQPEnabled() bool {
	return strings.TrimSpace(n.AMQPURL) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
