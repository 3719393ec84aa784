package config

const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	BrokerKafka  = "kafka"
	BrokerPubSub = "pubsub"

	ServiceKindAPI             = "api"
	ServiceKindOutboxPublisher = "outbox-publisher"

	defaultSQLiteDSN = "file:marketplace.db?cache=shared&_foreign_keys=on"
)

const (
	EnvAppEnv       = "MARKETPLACE_APP_ENV"
	EnvPort         = "MARKETPLACE_APP_PORT"
	EnvServiceKind  = "MARKETPLACE_SERVICE_KIND"
	EnvDBDSN        = "MARKETPLACE_DB_DSN"
	EnvDBDriver     = "MARKETPLACE_DB_DRIVER"
	EnvDBHost       = "MARKETPLACE_DB_HOST"
	EnvDBPort       = "MARKETPLACE_DB_PORT"
	EnvDBUser       = "MARKETPLACE_DB_USER"
	EnvDBPassword   = "MARKETPLACE_DB_PASSWORD"
	EnvDBName       = "MARKETPLACE_DB_NAME"
	EnvRedisURL     = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret    = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer    = "MARKETPLACE_JWT_ISSUER"
	EnvUseSQLite    = "MARKETPLACE_USE_SQLITE"
	EnvTaxRateBPS   = "MARKETPLACE_CHECKOUT_TAX_RATE_BPS"
	EnvOutboxBroker = "MARKETPLACE_OUTBOX_BROKER"
	EnvKafkaBrokers = "MARKETPLACE_KAFKA_BROKERS"
	EnvGCPProjectID = "MARKETPLACE_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
