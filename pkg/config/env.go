package config

const (
	EnvPrefix = "POFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "POFLOW_APP_ENV"
	EnvPort               = "POFLOW_APP_PORT"
	EnvPublicBaseURL      = "POFLOW_PUBLIC_BASE_URL"
	EnvCORSAllowedOrigins = "POFLOW_CORS_ALLOWED_ORIGINS"
	EnvTrustedProxies     = "POFLOW_TRUSTED_PROXIES"

	EnvDBDSN  = "POFLOW_DB_DSN"
	EnvDBHost = "POFLOW_DB_HOST"
	EnvDBUser = "POFLOW_DB_USER"
	EnvDBName = "POFLOW_DB_NAME"

	EnvRedisURL = "POFLOW_REDIS_URL"

	EnvJWTSecret = "POFLOW_JWT_SECRET"
	EnvJWTIssuer = "POFLOW_JWT_ISSUER"

	EnvGCPProjectID = "POFLOW_GCP_PROJECT_ID"
	EnvGCSBucket    = "POFLOW_GCS_BUCKET_NAME"

	EnvSentryDSN = "POFLOW_SENTRY_DSN"

	EnvInvoiceTokenTTL    = "POFLOW_INVOICE_UPLOAD_TOKEN_TTL"
	EnvInvoiceMaxUploadMB = "POFLOW_INVOICE_MAX_UPLOAD_MB"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
