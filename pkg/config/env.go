package config

const (
	EnvPrefix = "CARTENGINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	EnvAppEnv   = "CARTENGINE_APP_ENV"
	EnvPort     = "CARTENGINE_APP_PORT"
	EnvLogLevel = "CARTENGINE_LOG_LEVEL"

	EnvDBDSN    = "CARTENGINE_DB_DSN"
	EnvDBDriver = "CARTENGINE_DB_DRIVER"
	EnvDBHost   = "CARTENGINE_DB_HOST"
	EnvDBUser   = "CARTENGINE_DB_USER"
	EnvDBName   = "CARTENGINE_DB_NAME"

	EnvRedisURL = "CARTENGINE_REDIS_URL"

	EnvJWTSecret = "CARTENGINE_JWT_SECRET"
	EnvJWTIssuer = "CARTENGINE_JWT_ISSUER"

	EnvCheckoutDeliveryFee    = "CARTENGINE_CHECKOUT_DELIVERY_FEE"
	EnvCheckoutMinPhoneDigits = "CARTENGINE_CHECKOUT_MIN_PAYER_PHONE_DIGITS"

	EnvLedgerConflictRetries = "CARTENGINE_LEDGER_CONFLICT_RETRIES"

	EnvNotificationsTopic    = "CARTENGINE_NOTIFICATIONS_TOPIC"
	EnvNotificationsAMQPURL  = "CARTENGINE_NOTIFICATIONS_AMQP_URL"
	EnvNotificationsExchange = "CARTENGINE_NOTIFICATIONS_AMQP_EXCHANGE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
