package config

const (
	EnvPrefix = "DRAFTSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv         = "DRAFTSYNC_APP_ENV"
	EnvPort           = "DRAFTSYNC_APP_PORT"
	EnvLogLevel       = "DRAFTSYNC_LOG_LEVEL"
	EnvAllowedOrigins = "DRAFTSYNC_ALLOWED_ORIGINS"

	EnvDBDSN  = "DRAFTSYNC_DB_DSN"
	EnvDBPath = "DRAFTSYNC_DB_PATH"

	EnvRedisURL = "DRAFTSYNC_REDIS_URL"

	EnvRemoteBaseURL        = "DRAFTSYNC_REMOTE_BASE_URL"
	EnvRemoteAPIToken       = "DRAFTSYNC_REMOTE_API_TOKEN"
	EnvRemoteRequestTimeout = "DRAFTSYNC_REMOTE_REQUEST_TIMEOUT"

	EnvSyncMaxRetries    = "DRAFTSYNC_SYNC_MAX_RETRIES"
	EnvSyncBackoffBase   = "DRAFTSYNC_SYNC_BACKOFF_BASE"
	EnvSyncBackoffMax    = "DRAFTSYNC_SYNC_BACKOFF_MAX"
	EnvSyncBackoffJitter = "DRAFTSYNC_SYNC_BACKOFF_JITTER"

	EnvCleanupMaxAgeDays = "DRAFTSYNC_CLEANUP_MAX_AGE_DAYS"
	EnvLegacyDir         = "DRAFTSYNC_LEGACY_DIR"

	EnvPubSubProjectID     = "DRAFTSYNC_PUBSUB_PROJECT_ID"
	EnvPubSubProgressTopic = "DRAFTSYNC_PUBSUB_PROGRESS_TOPIC"
)
