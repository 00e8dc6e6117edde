package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvLogLevel = "ORDERFLOW_LOG_LEVEL"

	EnvDBDSN  = "ORDERFLOW_DB_DSN"
	EnvDBHost = "ORDERFLOW_DB_HOST"
	EnvDBUser = "ORDERFLOW_DB_USER"
	EnvDBName = "ORDERFLOW_DB_NAME"

	EnvRedisURL = "ORDERFLOW_REDIS_URL"

	EnvJWTSecret  = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer  = "ORDERFLOW_JWT_ISSUER"
	EnvJWTExpMins = "ORDERFLOW_JWT_EXPIRATION_MINUTES"

	EnvBobPayBaseURL    = "ORDERFLOW_BOBPAY_BASE_URL"
	EnvBobPayAPIToken   = "ORDERFLOW_BOBPAY_API_TOKEN"
	EnvBobPayPassphrase = "ORDERFLOW_BOBPAY_PASSPHRASE"

	EnvPaystackBaseURL   = "ORDERFLOW_PAYSTACK_BASE_URL"
	EnvPaystackSecretKey = "ORDERFLOW_PAYSTACK_SECRET_KEY"

	EnvCourierBaseURL       = "ORDERFLOW_COURIER_BASE_URL"
	EnvCourierWebhookSecret = "ORDERFLOW_COURIER_WEBHOOK_SECRET"
	EnvCourierTrustUnsigned = "ORDERFLOW_COURIER_TRUST_UNSIGNED"

	EnvBankingEncryptionKey = "ORDERFLOW_BANKING_ENCRYPTION_KEY"

	EnvPublicBaseURL  = "ORDERFLOW_PUBLIC_BASE_URL"
	EnvFrontendURL    = "ORDERFLOW_FRONTEND_URL"
	EnvGCPProjectID   = "ORDERFLOW_GCP_PROJECT_ID"
	EnvCronInterval   = "ORDERFLOW_CRON_INTERVAL"
	EnvPubSubOrders   = "ORDERFLOW_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotifier = "ORDERFLOW_PUBSUB_NOTIFICATION_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
