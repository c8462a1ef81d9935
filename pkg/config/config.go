package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Cleanup CleanupConfig
	Legacy  LegacyConfig
	PubSub  PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadLocal reads only the App and DB sections, for tools that never talk
// to the content API.
func LoadLocal() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg.App); err != nil {
		return nil, fmt.Errorf("parsing app config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg.DB); err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DRAFTSYNC_APP_ENV" default:"dev"`
	Port         string `envconfig:"DRAFTSYNC_APP_PORT" default:"8787"`
	LogLevel     string `envconfig:"DRAFTSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DRAFTSYNC_LOG_WARN_STACK" default:"false"`
	// comma separated origins allowed to call the local API (webview, dev server)
	AllowedOrigins []string `envconfig:"DRAFTSYNC_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN  string `envconfig:"DRAFTSYNC_DB_DSN"`
	Path string `envconfig:"DRAFTSYNC_DB_PATH" default:"draftsync.db"`

	BusyTimeout     time.Duration `envconfig:"DRAFTSYNC_DB_BUSY_TIMEOUT" default:"5s"`
	MaxOpenConns    int           `envconfig:"DRAFTSYNC_DB_MAX_OPEN_CONNS" default:"1"`
	MaxIdleConns    int           `envconfig:"DRAFTSYNC_DB_MAX_IDLE_CONNS" default:"1"`
	ConnMaxLifetime time.Duration `envconfig:"DRAFTSYNC_DB_CONN_MAX_LIFETIME" default:"0"`
	ConnMaxIdleTime time.Duration `envconfig:"DRAFTSYNC_DB_CONN_MAX_IDLE_TIME" default:"0"`
}

// RedisConfig is optional. When URL is empty scheduled passes are guarded
// by an in-process lock only.
type RedisConfig struct {
	URL          string        `envconfig:"DRAFTSYNC_REDIS_URL"`
	Password     string        `envconfig:"DRAFTSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"DRAFTSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DRAFTSYNC_REDIS_POOL_SIZE" default:"4"`
	DialTimeout  time.Duration `envconfig:"DRAFTSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DRAFTSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DRAFTSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type RemoteConfig struct {
	BaseURL        string        `envconfig:"DRAFTSYNC_REMOTE_BASE_URL" required:"true"`
	APIToken       string        `envconfig:"DRAFTSYNC_REMOTE_API_TOKEN"`
	RequestTimeout time.Duration `envconfig:"DRAFTSYNC_REMOTE_REQUEST_TIMEOUT" default:"30s"`
	HealthPath     string        `envconfig:"DRAFTSYNC_REMOTE_HEALTH_PATH" default:"/health/live"`
}

type SyncConfig struct {
	MaxRetries          int           `envconfig:"DRAFTSYNC_SYNC_MAX_RETRIES" default:"5"`
	BackoffBase         time.Duration `envconfig:"DRAFTSYNC_SYNC_BACKOFF_BASE" default:"60s"`
	BackoffMax          time.Duration `envconfig:"DRAFTSYNC_SYNC_BACKOFF_MAX" default:"1h"`
	BackoffJitter       float64       `envconfig:"DRAFTSYNC_SYNC_BACKOFF_JITTER" default:"0.1"`
	PollInterval        time.Duration `envconfig:"DRAFTSYNC_SYNC_POLL_INTERVAL" default:"2m"`
	OnlineCheckInterval time.Duration `envconfig:"DRAFTSYNC_SYNC_ONLINE_CHECK_INTERVAL" default:"15s"`
	StaleUploadAfter    time.Duration `envconfig:"DRAFTSYNC_SYNC_STALE_UPLOAD_AFTER" default:"15m"`
}

func (s SyncConfig) validate() error {
	if s.MaxRetries <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncMaxRetries)
	}
	if s.BackoffBase <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncBackoffBase)
	}
	if s.BackoffMax < s.BackoffBase {
		return fmt.Errorf("%s must be >= %s", EnvSyncBackoffMax, EnvSyncBackoffBase)
	}
	if s.BackoffJitter < 0 || s.BackoffJitter > 1 {
		return fmt.Errorf("%s must be within [0,1]", EnvSyncBackoffJitter)
	}
	return nil
}

type CleanupConfig struct {
	MaxAgeDays int           `envconfig:"DRAFTSYNC_CLEANUP_MAX_AGE_DAYS" default:"30"`
	Interval   time.Duration `envconfig:"DRAFTSYNC_CLEANUP_INTERVAL" default:"24h"`
}

type LegacyConfig struct {
	Dir string `envconfig:"DRAFTSYNC_LEGACY_DIR"`
}

// PubSubConfig enables mirroring upload progress to a topic when both
// values are set.
type PubSubConfig struct {
	ProjectID     string `envconfig:"DRAFTSYNC_PUBSUB_PROJECT_ID"`
	ProgressTopic string `envconfig:"DRAFTSYNC_PUBSUB_PROGRESS_TOPIC"`
}

func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.ProgressTopic != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.TrimSpace(db.Path) == "" {
		return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvDBPath)
	}

	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprintf("%d", db.BusyTimeout.Milliseconds()))
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")

	u := &url.URL{
		Scheme:   "file",
		Opaque:   db.Path,
		RawQuery: q.Encode(),
	}
	db.DSN = u.String()
	return nil
}
