package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "STOREFRONT_APP_ENV"
	EnvPort         = "STOREFRONT_APP_PORT"
	EnvLogLevel     = "STOREFRONT_LOG_LEVEL"
	EnvAutoMigrate  = "STOREFRONT_AUTO_MIGRATE"
	EnvServiceKind  = "STOREFRONT_SERVICE_KIND"
	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBPort       = "STOREFRONT_DB_PORT"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBPassword   = "STOREFRONT_DB_PASSWORD"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvDBSSLMode    = "STOREFRONT_DB_SSLMODE"
	EnvRedisURL     = "STOREFRONT_REDIS_URL"
	EnvJWTSecret    = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer    = "STOREFRONT_JWT_ISSUER"
	EnvJWTExpMins   = "STOREFRONT_JWT_EXPIRATION_MINUTES"
	EnvCarrierKey   = "STOREFRONT_CARRIER_API_KEY"
	EnvCarrierURL   = "STOREFRONT_CARRIER_BASE_URL"
	EnvPaymentKeyID = "STOREFRONT_PAYMENT_KEY_ID"
	EnvPaymentKey   = "STOREFRONT_PAYMENT_KEY_SECRET"
	EnvWarehouse    = "STOREFRONT_WAREHOUSE_NAME"
	EnvShippingFee  = "STOREFRONT_SHIPPING_FEE"
	EnvReturnWindow = "STOREFRONT_RETURN_WINDOW"
	EnvOpsMailbox   = "STOREFRONT_NOTIFY_OPS_MAILBOX"
	EnvNotifyOrder  = "STOREFRONT_NOTIFY_PROVIDERS"
	EnvGCPProjectID = "STOREFRONT_GCP_PROJECT_ID"
	EnvGCSBucket    = "STOREFRONT_GCS_BUCKET_NAME"
	EnvDomainTopic  = "STOREFRONT_PUBSUB_DOMAIN_TOPIC"
	EnvDomainSub    = "STOREFRONT_PUBSUB_DOMAIN_SUBSCRIPTION"
)

// legacyDBEnvVars must all be present when no DSN is configured.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
