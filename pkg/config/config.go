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
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	AuthRateLimit AuthRateLimitConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Durations     DurationLimitConfig
	Experiments   ExperimentsConfig
	Masquerade    MasqueradeConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COURSEWARE_APP_ENV" required:"true"`
	Port         string `envconfig:"COURSEWARE_APP_PORT" required:"true"`
	SiteName     string `envconfig:"COURSEWARE_SITE_NAME" default:"default"`
	LogLevel     string `envconfig:"COURSEWARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COURSEWARE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COURSEWARE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COURSEWARE_DB_DSN"`
	Driver string `envconfig:"COURSEWARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COURSEWARE_DB_HOST"`
	LegacyPort     int    `envconfig:"COURSEWARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COURSEWARE_DB_USER"`
	LegacyPassword string `envconfig:"COURSEWARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COURSEWARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COURSEWARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COURSEWARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COURSEWARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COURSEWARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COURSEWARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COURSEWARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COURSEWARE_REDIS_ADDR"`
	Password     string        `envconfig:"COURSEWARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COURSEWARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COURSEWARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COURSEWARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COURSEWARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COURSEWARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COURSEWARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"COURSEWARE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"COURSEWARE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"COURSEWARE_JWT_EXPIRATION_MINUTES" required:"true"`
}

// AuthRateLimitConfig throttles the unauthenticated auth endpoints. A zero
// window or zero limits disable the corresponding check.
type AuthRateLimitConfig struct {
	LoginWindow          time.Duration `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginAccountLimit    int           `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_LOGIN_ACCOUNT_LIMIT" default:"5"`
	LoginIPLimit         int           `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow       time.Duration `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterAccountLimit int           `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_REGISTER_ACCOUNT_LIMIT" default:"3"`
	RegisterIPLimit      int           `envconfig:"COURSEWARE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

// PasswordConfig tunes the Argon2id hashing parameters.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COURSEWARE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COURSEWARE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COURSEWARE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COURSEWARE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COURSEWARE_ARGON_KEY_LEN" default:"32"`
}

// FeatureFlagsConfig is the feature-flag map governing optional behaviors.
type FeatureFlagsConfig struct {
	ContentTypeGating    bool `envconfig:"COURSEWARE_FEATURE_CONTENT_TYPE_GATING" default:"true"`
	CourseDurationLimits bool `envconfig:"COURSEWARE_FEATURE_COURSE_DURATION_LIMITS" default:"true"`
	MilestonesApp        bool `envconfig:"COURSEWARE_FEATURE_MILESTONES_APP" default:"false"`
	UseSQLite            bool `envconfig:"COURSEWARE_USE_SQLITE" default:"false"`
	AutoMigrate          bool `envconfig:"COURSEWARE_AUTO_MIGRATE" default:"false"`
}

// DurationLimitConfig bounds the audit-access window.
type DurationLimitConfig struct {
	MinWeeks int `envconfig:"COURSEWARE_DURATION_MIN_WEEKS" default:"4"`
	MaxWeeks int `envconfig:"COURSEWARE_DURATION_MAX_WEEKS" default:"18"`
}

// Min returns the lower clamp bound as a duration.
func (d DurationLimitConfig) Min() time.Duration {
	return time.Duration(d.MinWeeks) * 7 * 24 * time.Hour
}

// Max returns the upper clamp bound as a duration.
func (d DurationLimitConfig) Max() time.Duration {
	return time.Duration(d.MaxWeeks) * 7 * 24 * time.Hour
}

// ExperimentsConfig carries the experiment flags consulted by gating and
// duration limits.
type ExperimentsConfig struct {
	GatingForceEnabled bool   `envconfig:"COURSEWARE_EXPERIMENT_GATING_FORCE_ENABLED" default:"false"`
	HoldbackNamespace  string `envconfig:"COURSEWARE_EXPERIMENT_HOLDBACK_NAMESPACE" default:"content_type_gating"`
	HoldbackKey        string `envconfig:"COURSEWARE_EXPERIMENT_HOLDBACK_KEY" default:"holdback"`
}

// MasqueradeConfig bounds how long a spoof directive survives in redis.
type MasqueradeConfig struct {
	SessionTTL time.Duration `envconfig:"COURSEWARE_MASQUERADE_SESSION_TTL" default:"2h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COURSEWARE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"COURSEWARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COURSEWARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EnrollmentTopic        string `envconfig:"COURSEWARE_PUBSUB_ENROLLMENT_TOPIC" default:"courseware-enrollment-events"`
	EnrollmentSubscription string `envconfig:"COURSEWARE_PUBSUB_ENROLLMENT_SUBSCRIPTION"`
	CourseTopic            string `envconfig:"COURSEWARE_PUBSUB_COURSE_TOPIC" default:"courseware-course-events"`
	CourseSubscription     string `envconfig:"COURSEWARE_PUBSUB_COURSE_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COURSEWARE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COURSEWARE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COURSEWARE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
