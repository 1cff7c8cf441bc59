package config

const (
	EnvPrefix = "SUPERMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "SUPERMARKET_APP_ENV"
	EnvPort         = "SUPERMARKET_APP_PORT"
	EnvDBDSN        = "SUPERMARKET_DB_DSN"
	EnvDBHost       = "SUPERMARKET_DB_HOST"
	EnvDBUser       = "SUPERMARKET_DB_USER"
	EnvDBName       = "SUPERMARKET_DB_NAME"
	EnvDBPassword   = "SUPERMARKET_DB_PASSWORD"
	EnvRedisURL     = "SUPERMARKET_REDIS_URL"
	EnvJWTSecret    = "SUPERMARKET_JWT_SECRET"
	EnvJWTIssuer    = "SUPERMARKET_JWT_ISSUER"
	EnvGCPProjectID = "SUPERMARKET_GCP_PROJECT_ID"
	EnvNotifySub    = "SUPERMARKET_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvStaleAfter   = "SUPERMARKET_STALE_ORDER_AFTER"
	EnvAmountMatch  = "SUPERMARKET_MPESA_ALLOW_AMOUNT_FALLBACK"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
